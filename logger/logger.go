// Package logger holds the leveled loggers shared by the reconstruction engine
// and its helper packages.
package logger

import (
	"io"
	"log"
	"os"
)

var (
	// Debug is a logger for debug level messages. It is discarded until EnableDebug is called.
	Debug = log.New(io.Discard, "[Debug] mbr: ", log.Lshortfile)
	// Info is a logger for infomation level messages
	Info = log.New(os.Stdout, "[Info] mbr: ", 0)
	// Warn is a logger for warning level messages
	Warn = log.New(os.Stderr, "[Warning] mbr: ", 0)
	// Err is a logger for error level messages
	Err     = log.New(os.Stderr, "[Error] mbr: ", 0)
	loggers = []*log.Logger{Debug, Info, Warn, Err}
)

// EnableDebug routes debug messages to w.
func EnableDebug(w io.Writer) {
	Debug.SetOutput(w)
}

// SetLogsFlags applies flags to every logger.
func SetLogsFlags(flags int) {
	for _, logger := range loggers {
		logger.SetFlags(flags)
	}
}

// SetLogsOutput redirects every logger, debug included, to w.
func SetLogsOutput(w io.Writer) {
	for _, logger := range loggers {
		logger.SetOutput(w)
	}
}

// SetLogsPrefix sets the message prefix of every logger.
func SetLogsPrefix(prefix string) {
	for _, logger := range loggers {
		logger.SetPrefix(prefix)
	}
}
