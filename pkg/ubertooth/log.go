package ubertooth

import "github.com/sirupsen/logrus"

var log = logrus.New()

func init() {
	log.Formatter = new(logrus.TextFormatter)
	log.Level = logrus.WarnLevel
}

// SetLogLevel adjusts the package logger verbosity.
func SetLogLevel(level logrus.Level) {
	log.Level = level
}
