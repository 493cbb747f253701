package server

import (
	"io"

	"github.com/iov-one/escrowfactory/errors"
	"github.com/tendermint/tendermint/libs/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger returns a logger writing to out and, when configured, to a
// rotated log file. The returned closer releases the file.
func NewLogger(conf LogConfig, out io.Writer) (log.Logger, io.Closer, error) {
	allow, err := log.AllowLevel(conf.Level)
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	var closer io.Closer = nopCloser{}
	if conf.File != "" {
		file := &lumberjack.Logger{
			Filename:   conf.File,
			MaxSize:    conf.MaxSizeMB,
			MaxBackups: conf.MaxBackups,
			MaxAge:     conf.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(out, file)
		closer = file
	}
	logger := log.NewTMLogger(log.NewSyncWriter(out))
	return log.NewFilter(logger, allow), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
