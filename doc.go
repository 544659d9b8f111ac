/*
Package rabbit provides publishing and consuming workers on top of RabbitMQ message broker.

It is the broker glue for the classic messaging patterns. Package rpc builds
request/reply on it and package pkg/tutorial wires the simple queue, work
queue, publish/subscribe, routing and topic patterns.

Features

- Connection to a RabbitMQ cluster with automatic reconnection

- Declarative topology: exchanges, named and server-named queues, bindings

- Publishing in confirm mode, Publish returns once the broker confirmed the message

- Consuming with prefetch, automatic or manual acknowledgement

- Batching of acknowledgements sent to broker

- Channel recreation on protocol errors

- Pluggable logging

Example

This example publishes a message to a queue and consumes it

    conn := &rabbit.Connection{
        Hostnames: []string{"127.0.0.1:5672"},
        Username:  "guest",
        Password:  "guest",
    }
    defer conn.Close()

    consumer := &rabbit.Consumer{
        Connection: conn,
        Queue:      rabbit.Queue{Name: "hello"},
        AutoAck:    true,
        Handler: func(m *rabbit.Message) {
            fmt.Printf(" [x] Received '%s'\n", m.Body)
        },
    }
    if err := consumer.Start(); err != nil {
        log.Fatal(err)
    }
    defer consumer.Shutdown()

    publisher := &rabbit.Publisher{Connection: conn}
    if err := publisher.Start(); err != nil {
        log.Fatal(err)
    }
    defer publisher.Shutdown()

    err := publisher.Publish(context.Background(), rabbit.TextMessage("", "hello", "Hello World!"))
    if err != nil {
        log.Fatal(err)
    }

See tests and runnable examples for additional info.

*/
package rabbit
