// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/abiosoft/ishell"

	snaplink "github.com/ZaparooProject/go-snaplink"
	"github.com/ZaparooProject/go-snaplink/camera"
	"github.com/ZaparooProject/go-snaplink/transfer"
)

const shellKey = "$snaplink"

// shell drives a manager from an interactive ishell session. Captures run
// in the background so stop and status stay usable while they send.
type shell struct {
	ctx  context.Context
	m    *transfer.Manager
	cfg  *config
	sh   *ishell.Shell
	blob any
	wg   sync.WaitGroup
	mu   sync.Mutex
}

func newShell(ctx context.Context, m *transfer.Manager, cfg *config) *shell {
	s := &shell{ctx: ctx, m: m, cfg: cfg, sh: ishell.New()}
	s.sh.Set(shellKey, s)
	s.sh.SetPrompt("snaplink > ")
	for _, cmd := range commands {
		s.sh.AddCmd(cmd)
	}
	return s
}

func shellFrom(c *ishell.Context) *shell {
	return c.Get(shellKey).(*shell)
}

var commands = []*ishell.Cmd{
	&captureCmd,
	&streamCmd,
	&sendCmd,
	&tickCmd,
	&drainCmd,
	&stopCmd,
	&statusCmd,
	&qualityCmd,
}

var (
	captureCmd = ishell.Cmd{
		Name: "capture",
		Help: "capture [source] [name]: encode and send one frame",
		Func: func(c *ishell.Context) {
			s := shellFrom(c)
			spec, name := s.cfg.captureSpec, ""
			if len(c.Args) > 0 {
				spec = c.Args[0]
			}
			if len(c.Args) > 1 {
				name = c.Args[1]
			}
			s.startCapture(c, spec, func(src camera.RowSource) transfer.Request {
				return transfer.CaptureRequest(src, name)
			})
		},
	}

	streamCmd = ishell.Cmd{
		Name: "stream",
		Help: "stream [source] [base]: send captures until stopped",
		Func: func(c *ishell.Context) {
			s := shellFrom(c)
			spec, base := s.cfg.captureSpec, ""
			if len(c.Args) > 0 {
				spec = c.Args[0]
			}
			if len(c.Args) > 1 {
				base = c.Args[1]
			}
			s.startCapture(c, spec, func(src camera.RowSource) transfer.Request {
				return transfer.StreamRequest(src, base)
			})
		},
	}

	sendCmd = ishell.Cmd{
		Name: "send",
		Help: "send <blob> [name]: start a blob transfer, advanced by tick or drain",
		Func: func(c *ishell.Context) {
			if len(c.Args) == 0 {
				c.Err(errors.New("usage: send <blob> [name]"))
				return
			}
			s := shellFrom(c)
			r, err := openBlob(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			name := ""
			if len(c.Args) > 1 {
				name = c.Args[1]
			}
			if err := s.m.StartTransfer(s.ctx, transfer.BlobRequest(r, name)); err != nil {
				closeIfCloser(r)
				c.Err(err)
				return
			}
			s.mu.Lock()
			s.blob = r
			s.mu.Unlock()
			c.Printf("Started %s\n", s.m.Status().Name)
		},
	}

	tickCmd = ishell.Cmd{
		Name: "tick",
		Help: "tick [n]: send the next n blob frames",
		Func: func(c *ishell.Context) {
			s := shellFrom(c)
			n := 1
			if len(c.Args) > 0 {
				v, err := strconv.Atoi(c.Args[0])
				if err != nil || v <= 0 {
					c.Err(fmt.Errorf("invalid tick count %q", c.Args[0]))
					return
				}
				n = v
			}
			for i := 0; i < n; i++ {
				active, err := s.m.Tick(s.ctx)
				if err != nil && !errors.Is(err, snaplink.ErrNoActiveSession) {
					c.Err(err)
				}
				if !active {
					s.finished(c)
					return
				}
			}
			printStatus(c, s.m.Status())
		},
	}

	drainCmd = ishell.Cmd{
		Name: "drain",
		Help: "drain: send the rest of the active blob",
		Func: func(c *ishell.Context) {
			s := shellFrom(c)
			if err := s.m.Drain(s.ctx, s.cfg.tick); err != nil && !errors.Is(err, snaplink.ErrNoActiveSession) {
				c.Err(err)
			}
			s.finished(c)
		},
	}

	stopCmd = ishell.Cmd{
		Name: "stop",
		Help: "stop: cancel the active transfer",
		Func: func(c *ishell.Context) {
			s := shellFrom(c)
			if err := s.m.Stop(); err != nil {
				c.Err(err)
				return
			}
			if !s.m.Active() {
				s.finished(c)
			}
		},
	}

	statusCmd = ishell.Cmd{
		Name: "status",
		Help: "status: show the active transfer",
		Func: func(c *ishell.Context) {
			printStatus(c, shellFrom(c).m.Status())
		},
	}

	qualityCmd = ishell.Cmd{
		Name: "quality",
		Help: "quality <0-100>: set JPEG quality for later captures",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(errors.New("usage: quality <0-100>"))
				return
			}
			q, err := strconv.Atoi(c.Args[0])
			if err != nil {
				c.Err(fmt.Errorf("invalid quality %q", c.Args[0]))
				return
			}
			if err := shellFrom(c).m.SetQuality(q); err != nil {
				c.Err(err)
			}
		},
	}
)

// startCapture opens spec and runs the request built from it in the
// background.
func (s *shell) startCapture(c *ishell.Context, spec string, build func(camera.RowSource) transfer.Request) {
	if spec == "" {
		spec = "gradient"
	}
	if s.m.Active() {
		c.Err(snaplink.ErrSessionActive)
		return
	}
	src, err := openSource(spec, s.cfg.width, s.cfg.height)
	if err != nil {
		c.Err(err)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer closeIfCloser(src)
		if err := s.m.StartTransfer(s.ctx, build(src)); err != nil {
			s.sh.Printf("capture failed: %v\n", err)
		}
		if res, ok := s.m.LastResult(); ok {
			s.sh.Printf("%s %s: %d frames, %d bytes, %d images\n",
				res.Outcome, res.Name, res.Frames, res.BytesSent, res.Images)
		}
	}()
}

// finished releases the blob of a session that has ended
func (s *shell) finished(c *ishell.Context) {
	s.mu.Lock()
	r := s.blob
	s.blob = nil
	s.mu.Unlock()
	if r == nil {
		return
	}
	closeIfCloser(r)
	if res, ok := s.m.LastResult(); ok {
		c.Printf("%s %s: %d frames, %d bytes\n", res.Outcome, res.Name, res.Frames, res.BytesSent)
	}
}

func printStatus(c *ishell.Context, st transfer.Status) {
	if !st.Active {
		c.Println("idle")
		return
	}
	total := "unknown"
	if st.Total >= 0 {
		total = strconv.FormatInt(st.Total, 10)
	}
	c.Printf("%s %s [%s] %s: %d/%s bytes, %d frames, %d images\n",
		st.Kind, st.Name, st.SessionID, st.State, st.BytesSent, total, st.Frames, st.Images)
}

// close stops any running session and waits for background captures
func (s *shell) close() {
	_ = s.m.Stop()
	s.wg.Wait()
	s.mu.Lock()
	r := s.blob
	s.blob = nil
	s.mu.Unlock()
	closeIfCloser(r)
}

func runShell(ctx context.Context, m *transfer.Manager, cfg *config) error {
	s := newShell(ctx, m, cfg)
	defer s.close()

	go func() {
		<-ctx.Done()
		s.sh.Close()
	}()

	s.sh.Println("snaplink shell. Type help for commands.")
	s.sh.Run()
	return nil
}
