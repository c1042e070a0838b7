/*
 * Copyright 2025 BulkRT Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package chardev

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

type logger struct {
	name      string
	mu        sync.Mutex
	out       io.Writer
	callDepth int
}

var (
	internalLogger = &logger{"", sync.Mutex{}, os.Stdout, 3}
	level          int

	magenta = string([]byte{27, 91, 57, 53, 109}) // Trace
	green   = string([]byte{27, 91, 57, 50, 109}) // Debug
	blue    = string([]byte{27, 91, 57, 52, 109}) // Info
	yellow  = string([]byte{27, 91, 57, 51, 109}) // Warn
	red     = string([]byte{27, 91, 57, 49, 109}) // Error
	reset   = string([]byte{27, 91, 48, 109})

	colors = []string{magenta, green, blue, yellow, red}

	levelName = []string{"Trace", "Debug", "Info", "Warn", "Error"}
)

const (
	levelTrace = iota
	levelDebug
	levelInfo
	levelWarn
	levelError
	levelNoPrint
)

func init() {
	level = levelWarn
	if env := os.Getenv("BULKRT_LOG_LEVEL"); env != "" {
		if n, err := strconv.Atoi(env); err == nil && n <= levelNoPrint {
			level = n
		}
	}
}

// SetLogLevel changes the internal logger's level. The default is Warning;
// the process env `BULKRT_LOG_LEVEL` can also set it.
func SetLogLevel(l int) {
	if l <= levelNoPrint {
		level = l
	}
}

// SetLogOutput redirects the internal logger.
func SetLogOutput(w io.Writer) {
	if w == nil {
		return
	}
	internalLogger.mu.Lock()
	internalLogger.out = w
	internalLogger.mu.Unlock()
}

func (l *logger) printf(lv int, format string, a ...interface{}) {
	if level > lv {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, l.prefix(lv)+format+reset+"\n", a...)
}

func (l *logger) errorf(format string, a ...interface{}) { l.printf(levelError, format, a...) }
func (l *logger) warnf(format string, a ...interface{})  { l.printf(levelWarn, format, a...) }
func (l *logger) infof(format string, a ...interface{})  { l.printf(levelInfo, format, a...) }
func (l *logger) debugf(format string, a ...interface{}) { l.printf(levelDebug, format, a...) }
func (l *logger) tracef(format string, a ...interface{}) { l.printf(levelTrace, format, a...) }

func (l *logger) prefix(lv int) string {
	var buffer [64]byte
	buf := bytes.NewBuffer(buffer[:0])
	buf.WriteString(colors[lv])
	buf.WriteString(levelName[lv])
	buf.WriteByte(' ')
	buf.WriteString(time.Now().Format("2006-01-02 15:04:05.999999"))
	buf.WriteByte(' ')
	buf.WriteString(l.location())
	buf.WriteByte(' ')
	buf.WriteString(l.name)
	buf.WriteByte(' ')
	return buf.String()
}

func (l *logger) location() string {
	_, file, line, ok := runtime.Caller(l.callDepth)
	if !ok {
		file = "???"
		line = 0
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}

// DumpDebugInfo prints every attached session's pipeline state plus the
// process's memory footprint to w.
func DumpDebugInfo(w io.Writer, r *Registry) {
	for _, name := range r.Names() {
		s, ok := r.sessions.Get(name)
		if !ok {
			continue
		}
		s.rp.mu.Lock()
		filled, consumed, requesting := s.rp.filled, s.rp.consumed, s.rp.requesting
		s.rp.mu.Unlock()
		fmt.Fprintf(w, "device:%s refs:%d filled:%d consumed:%d requesting:%v anchored:%d\n",
			name, s.refs.Load(), filled, consumed, requesting, s.anchored.len())
	}

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		fmt.Fprintf(w, "process stats unavailable: %v\n", err)
		return
	}
	if mi, err := p.MemoryInfo(); err == nil {
		fmt.Fprintf(w, "process rss:%d vms:%d goroutines:%d\n",
			mi.RSS, mi.VMS, runtime.NumGoroutine())
	}
}
