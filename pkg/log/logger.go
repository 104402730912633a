/*
 * Copyright (c) 2018. LuCongyao <6congyao@gmail.com> .
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this work except in compliance with the License.
 * You may obtain a copy of the License in the LICENSE file, or at:
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package log

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	StdoutPath = "stdout"
	StderrPath = "stderr"
)

// DefaultLogger is used by every package unless replaced at bootstrap.
var DefaultLogger Logger = newStdLogger(os.Stderr, INFO)

var levelMap = map[Level]logrus.Level{
	FATAL: logrus.FatalLevel,
	ERROR: logrus.ErrorLevel,
	WARN:  logrus.WarnLevel,
	INFO:  logrus.InfoLevel,
	DEBUG: logrus.DebugLevel,
	TRACE: logrus.TraceLevel,
}

// logger is a Logger backed by logrus
type logger struct {
	mu     sync.Mutex
	path   string
	level  Level
	file   *os.File
	output *logrus.Logger
}

// NewLogger creates a logger writing to path. The path "stdout", "stderr"
// or an empty path write to the process streams.
func NewLogger(path string, level Level) (Logger, error) {
	l := &logger{
		path:   path,
		level:  level,
		output: logrus.New(),
	}
	l.output.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	l.output.SetLevel(levelMap[level])

	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func newStdLogger(w io.Writer, level Level) *logger {
	l := &logger{
		level:  level,
		output: logrus.New(),
	}
	l.output.SetOutput(w)
	l.output.SetLevel(levelMap[level])
	return l
}

func (l *logger) open() error {
	switch l.path {
	case "", StdoutPath:
		l.output.SetOutput(os.Stdout)
		return nil
	case StderrPath:
		l.output.SetOutput(os.Stderr)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	l.file = f
	l.output.SetOutput(f)
	return nil
}

func (l *logger) Println(args ...interface{}) {
	l.output.Infoln(args...)
}

func (l *logger) Printf(format string, args ...interface{}) {
	l.output.Infof(format, args...)
}

func (l *logger) Infof(format string, args ...interface{}) {
	l.output.Infof(format, args...)
}

func (l *logger) Debugf(format string, args ...interface{}) {
	l.output.Debugf(format, args...)
}

func (l *logger) Warnf(format string, args ...interface{}) {
	l.output.Warnf(format, args...)
}

func (l *logger) Errorf(format string, args ...interface{}) {
	l.output.Errorf(format, args...)
}

func (l *logger) Tracef(format string, args ...interface{}) {
	l.output.Tracef(format, args...)
}

func (l *logger) Fatalf(format string, args ...interface{}) {
	l.output.Fatalf(format, args...)
}

func (l *logger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
	l.output.SetLevel(levelMap[level])
}

func (l *logger) GetLevel() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

func (l *logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Reopen reopens the log file, used after an external rotation.
func (l *logger) Reopen() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	l.file.Close()
	l.file = nil
	return l.open()
}
