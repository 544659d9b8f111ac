package rabbit

import (
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/streadway/amqp"

	"github.com/w1ck3dg0ph3r/rabbit-patterns/pkg/channel"
)

// Connection is a message broker connection shared by publishers and consumers
//
// The connection is dialed lazily by the first Open and redialed by any Open
// that finds it closed. When several hostnames are given, a random one is
// tried on every attempt.
type Connection struct {
	// Protocol is "amqp" or "amqps", default is amqp
	Protocol string

	// Hostnames is a slice of AMQP broker hostname[:port] pairs to connect to
	Hostnames []string

	// Vhost is the virtual host, default is "/"
	Vhost    string
	Username string
	Password string

	// Connection timeout to a single broker
	DialTimeout time.Duration

	// Overall connection timeout
	ConnectionTimeout time.Duration

	// Backoff added to the delay after every failed attempt
	ConnectionBackoff time.Duration

	// Heartbeat interval negotiated with the broker, default is 10s
	Heartbeat time.Duration

	Logger Logger

	connM sync.Mutex
	conn  *amqp.Connection

	currentHost string

	defaultsSet bool
}

// ConnectionOpenCloser opens channels on a shared broker connection
type ConnectionOpenCloser interface {
	Open() (channel.Channel, error)
	Close() error
}

var (
	errNoBrokers         = errors.New("no brokers specified")
	errConnectionTimeout = errors.New("connection timeout")
)

// Open returns a new AMQP channel, connecting or reconnecting to the broker if necessary
//
// Clients need to reacquire channel on any errors and when channel or underlying
// connection closes. See github.com/streadway/amqp documentation for details.
func (c *Connection) Open() (channel.Channel, error) {
	c.connM.Lock()
	defer c.connM.Unlock()

	if c.conn == nil || c.conn.IsClosed() {
		if err := c.connect(); err != nil {
			return nil, err
		}
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, errors.Wrapf(err, "cant open channel on %s", c.currentHost)
	}
	return ch, nil
}

// Close closes the connection and every channel opened on it
func (c *Connection) Close() (err error) {
	c.connM.Lock()
	defer c.connM.Unlock()

	if c.conn != nil && !c.conn.IsClosed() {
		err = c.conn.Close()
	}
	c.conn = nil

	return
}

// URI returns broker URI for the given hostname with password omitted
func (c *Connection) URI(hostname string) string {
	uri := c.uri(hostname)
	uri.Password = ""
	return uri.String()
}

func (c *Connection) connect() error {
	if len(c.Hostnames) == 0 {
		return errNoBrokers
	}

	if !c.defaultsSet {
		c.setDefaults()
		c.defaultsSet = true
	}

	timeout := time.NewTimer(c.ConnectionTimeout)
	defer timeout.Stop()
	stop := make(chan struct{})
	done := make(chan dialed)
	go c.connectRandomNode(done, stop)

	select {
	case d := <-done:
		c.conn = d.conn
		c.currentHost = d.hostname
		c.infof("connected to %s", c.URI(d.hostname))
		return nil
	case <-timeout.C:
		close(stop)
		return errConnectionTimeout
	}
}

type dialed struct {
	conn     *amqp.Connection
	hostname string
}

func (c *Connection) connectRandomNode(done chan<- dialed, stop <-chan struct{}) {
	delay := 1 * time.Second
	for {
		hostname := c.Hostnames[rand.Intn(len(c.Hostnames))]
		conn, err := c.connectNode(hostname)
		if err == nil {
			select {
			case done <- dialed{conn, hostname}:
			case <-stop:
				_ = conn.Close()
			}
			return
		}
		c.debugf("error connecting to %s: %v", hostname, err)
		select {
		case <-stop:
			return
		case <-time.After(delay):
		}
		delay += c.ConnectionBackoff
	}
}

func (c *Connection) connectNode(hostname string) (*amqp.Connection, error) {
	dialConfig := amqp.Config{
		Heartbeat: c.Heartbeat,
		Dial:      amqp.DefaultDial(c.DialTimeout),
	}
	return amqp.DialConfig(c.uri(hostname).String(), dialConfig)
}

func (c *Connection) uri(hostname string) amqp.URI {
	uri := amqp.URI{
		Scheme:   c.Protocol,
		Host:     hostname,
		Port:     5672,
		Username: c.Username,
		Password: c.Password,
		Vhost:    c.Vhost,
	}
	if uri.Scheme == "amqps" {
		uri.Port = 5671
	}
	if host, port, err := net.SplitHostPort(hostname); err == nil {
		if p, err := strconv.Atoi(port); err == nil {
			uri.Host = host
			uri.Port = p
		}
	}
	return uri
}

func (c *Connection) setDefaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = 3 * time.Second
	}
	if c.ConnectionTimeout == 0 {
		c.ConnectionTimeout = 10 * time.Second
	}
	if c.ConnectionBackoff == 0 {
		c.ConnectionBackoff = 3 * time.Second
	}
	if c.Heartbeat == 0 {
		c.Heartbeat = 10 * time.Second
	}
	if c.Protocol == "" {
		c.Protocol = "amqp"
	}
	if c.Vhost == "" {
		c.Vhost = "/"
	}
}

func (c *Connection) debugf(f string, a ...interface{}) {
	if c.Logger != nil {
		c.Logger.Debugf(f, a...)
	}
}

func (c *Connection) infof(f string, a ...interface{}) {
	if c.Logger != nil {
		c.Logger.Infof(f, a...)
	}
}

func init() {
	rand.Seed(time.Now().UnixNano())
}
