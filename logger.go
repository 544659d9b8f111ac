package rabbit

// Logger is a minimal leveled logger, *logrus.Logger satisfies it
type Logger interface {
	Debugf(string, ...interface{})
	Infof(string, ...interface{})
}
