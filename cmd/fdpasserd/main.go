// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Command fdpasserd is a reference caller for package passer: it rendezvous
// with a peer over a unix-domain socket, then shuttles descriptors named on
// the command line across the resulting Passer, demonstrating the handshake
// and push_send_fh/push_recv_fh sequence a real caller would follow.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"golang.org/x/sys/unix"

	"github.com/xtaci/fdpasser/passer"
	"github.com/xtaci/fdpasser/rendezvous"
)

// VERSION is injected by buildflags
var VERSION = "SELFBUILD"

var log = logrus.WithField("component", "fdpasserd")

func main() {
	myApp := cli.NewApp()
	myApp.Name = "fdpasserd"
	myApp.Usage = "reference file-descriptor passing daemon"
	myApp.Version = VERSION
	myApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "listen, l",
			Value: "",
			Usage: "rendezvous path to listen on and accept one peer from",
		},
		cli.StringFlag{
			Name:  "connect",
			Value: "",
			Usage: "rendezvous path to connect to, instead of listening",
		},
		cli.StringFlag{
			Name:  "send",
			Value: "",
			Usage: "comma-separated list of file paths to open and send to the peer",
		},
		cli.StringFlag{
			Name:  "recvdir",
			Value: "",
			Usage: "directory to write received descriptors' contents into, numbered 0,1,2,...",
		},
		cli.IntFlag{
			Name:  "recvcount",
			Value: 0,
			Usage: "number of descriptors to expect from the peer before exiting",
		},
		cli.IntFlag{
			Name:  "statsperiod",
			Value: 0,
			Usage: "seconds between Stats() log lines, 0 to disable",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "specify a log file to output, default goes to stderr",
		},
		cli.BoolFlag{
			Name:  "quiet",
			Usage: "suppress per-descriptor send/receive log lines",
		},
		cli.StringFlag{
			Name:  "c",
			Value: "",
			Usage: "config from json file, which will override the command from shell",
		},
	}
	myApp.Action = run
	if err := myApp.Run(os.Args); err != nil {
		log.WithError(err).Fatal("fdpasserd exited with error")
	}
}

func run(c *cli.Context) error {
	config := Config{}
	config.Listen = c.String("listen")
	config.Connect = c.String("connect")
	config.Send = c.String("send")
	config.RecvDir = c.String("recvdir")
	config.RecvCount = c.Int("recvcount")
	config.StatsPeriod = c.Int("statsperiod")
	config.Log = c.String("log")
	config.Quiet = c.Bool("quiet")

	if c.String("c") != "" {
		if err := parseJSONConfig(&config, c.String("c")); err != nil {
			return errors.Wrap(err, "parseJSONConfig")
		}
	}

	if config.Log != "" {
		f, err := os.OpenFile(config.Log, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return errors.Wrap(err, "opening log file")
		}
		defer f.Close()
		logrus.SetOutput(f)
	}

	if config.Listen == "" && config.Connect == "" {
		return errors.New("one of -listen or -connect is required")
	}

	endpoint, cleanup, err := rendezvousEndpoint(&config)
	if err != nil {
		return errors.Wrap(err, "rendezvous")
	}
	defer cleanup()

	p, err := passer.New(passer.Config{FDs: []int{endpoint}})
	if err != nil {
		return errors.Wrap(err, "passer.New")
	}
	defer p.Shutdown()

	done := make(chan struct{})
	var pending int

	if config.Send != "" {
		for _, path := range strings.Split(config.Send, ",") {
			path = strings.TrimSpace(path)
			if path == "" {
				continue
			}
			path := path
			f, err := os.Open(path)
			if err != nil {
				return errors.Wrapf(err, "opening %s to send", path)
			}
			// PushSendFH takes ownership of the fd it's given and the caller
			// must not touch it again after a successful call, so hand over
			// a dup and let f's own fd be closed here, once.
			fd, err := unix.Dup(int(f.Fd()))
			f.Close()
			if err != nil {
				return errors.Wrapf(err, "dup %s to send", path)
			}
			if err := p.PushSendFH(fd, func(err error) {
				if err != nil {
					log.WithError(err).WithField("path", path).Error("send failed")
				} else if !config.Quiet {
					log.WithField("path", path).Info("sent")
				}
			}); err != nil {
				syscall.Close(fd)
				return errors.Wrapf(err, "queueing %s", path)
			}
		}
	}

	if config.RecvCount > 0 {
		pending = config.RecvCount
		if config.RecvDir != "" {
			if err := os.MkdirAll(config.RecvDir, 0755); err != nil {
				return errors.Wrap(err, "creating recvdir")
			}
		}
		for i := 0; i < config.RecvCount; i++ {
			i := i
			if err := p.PushRecvFH(func(fd int, err error) {
				handleReceived(&config, i, fd, err)
				pending--
				if pending == 0 {
					close(done)
				}
			}); err != nil {
				return errors.Wrap(err, "queueing recv")
			}
		}
	}

	if config.StatsPeriod > 0 {
		go logStats(p, time.Duration(config.StatsPeriod)*time.Second)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	if pending == 0 {
		// nothing to wait on but the sends we queued above; give them a
		// moment to drain, then exit.
		select {
		case <-sig:
		case <-time.After(2 * time.Second):
		}
		return nil
	}

	select {
	case <-done:
	case <-sig:
		log.Warn("interrupted before all descriptors were received")
	}
	return nil
}

func handleReceived(config *Config, idx int, fd int, err error) {
	if err != nil {
		log.WithError(err).Error("receive failed")
		return
	}
	defer syscall.Close(fd)
	if !config.Quiet {
		log.WithField("index", idx).Info("received descriptor")
	}
	if config.RecvDir == "" {
		return
	}
	src := os.NewFile(uintptr(fd), fmt.Sprintf("recv-%d", idx))
	dstPath := filepath.Join(config.RecvDir, fmt.Sprintf("%d", idx))
	dst, err := os.Create(dstPath)
	if err != nil {
		log.WithError(err).WithField("path", dstPath).Error("creating recv output file")
		return
	}
	defer dst.Close()
	if _, err := dst.ReadFrom(src); err != nil {
		log.WithError(err).WithField("path", dstPath).Error("copying received descriptor")
	}
}

func logStats(p *passer.Passer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		s := p.Stats()
		log.WithFields(logrus.Fields{
			"sent":       s.Sent,
			"received":   s.Received,
			"retryEnter": s.RetryEntries,
			"retryExit":  s.RetryExits,
			"sendQDepth": s.SendQueued,
			"recvQDepth": s.RecvQueued,
		}).Info("stats")
		if s.RetryEntries > s.RetryExits {
			color.Red("WARNING: descriptor table under pressure, %d retry episode(s) active", s.RetryEntries-s.RetryExits)
		}
	}
}

func rendezvousEndpoint(config *Config) (fd int, cleanup func(), err error) {
	if config.Connect != "" {
		fd, err = rendezvous.Connect(config.Connect)
		if err != nil {
			return -1, nil, err
		}
		return fd, func() {}, nil
	}

	l, err := rendezvous.Server(config.Listen, 0)
	if err != nil {
		return -1, nil, err
	}
	fd, err = l.Accept()
	if err != nil {
		l.Close()
		return -1, nil, err
	}
	return fd, func() { l.Close() }, nil
}
