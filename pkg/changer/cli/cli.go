// Copyright © 2019 NVIDIA Corporation
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

package changer_cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/NVIDIA/chgscsi/pkg/changer"
	"github.com/NVIDIA/chgscsi/pkg/device"
	"github.com/NVIDIA/chgscsi/pkg/state"
)

type RetryConfig struct {
	Max          int           `help:"Retries of a command the device asks to repeat" default:"5"`
	Delay        time.Duration `help:"Delay between retries" default:"2s"`
	PollCount    int           `help:"Number of times to poll a tape drive for readiness" default:"300"`
	PollInterval time.Duration `help:"Delay between readiness polls" default:"2s"`
	NoInitStatus bool          `help:"Do not reinitialize element status after import/export exceptions"`
}

type Globals struct {
	LogLevel      string      `help:"Set the logging level (debug|info|warn|error)" default:"info"`
	Changer       string      `short:"c" help:"The URL of the changer device" default:"sg:/dev/sg0"`
	Tapes         []string    `short:"t" help:"Tape device URLs, one per drive in element order"`
	Identity      string      `help:"Changer identity used to pick a vendor profile instead of INQUIRY"`
	TapeIdentity  string      `help:"Tape drive identity used to pick a vendor profile instead of INQUIRY"`
	Retry         RetryConfig `embed prefix:"retry-"`
	StateFile     string      `help:"Path of the persistent state file" default:"/var/lib/chgscsi/state.json"`
	MetricsListen string      `help:"Serve Prometheus metrics on this address"`
}

type CLI struct {
	Globals

	Status    StatusCmd    `cmd help:"Print the status of every element"`
	Load      LoadCmd      `cmd help:"Load a cartridge from a slot into a drive"`
	Unload    UnloadCmd    `cmd help:"Return the cartridge in a drive to a slot"`
	FindEmpty FindEmptyCmd `cmd help:"Print the first empty slot"`
	Slots     SlotsCmd     `cmd help:"Print the number of slots and drives"`
	Current   CurrentCmd   `cmd help:"Print the slot the cartridge in a drive came from"`
	Eject     EjectCmd     `cmd help:"Take the tape in a drive offline"`
	Clean     CleanCmd     `cmd help:"Report whether a drive needs cleaning"`
	Reset     ResetCmd     `cmd help:"Make the changer rescan its elements"`
	Search    SearchCmd    `cmd help:"Find a cartridge by its volume tag"`
	Logs      LogsCmd      `cmd help:"Print the log counters of a drive"`
	Inquiry   InquiryCmd   `cmd help:"Print the INQUIRY data of the changer and drives"`
	Version   VersionCmd   `cmd help:"Print the client version information"`
}

var promMetrics struct {
	device  *device.Metrics
	changer *changer.Metrics
}

func (g *Globals) metrics() (*device.Metrics, *changer.Metrics) {
	if g.MetricsListen == "" {
		return nil, nil
	}
	if promMetrics.device == nil {
		promMetrics.device = device.NewMetrics(prometheus.DefaultRegisterer, "chgscsi_device")
		promMetrics.changer = changer.NewMetrics(prometheus.DefaultRegisterer, "chgscsi")

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(g.MetricsListen, mux); err != nil {
				zap.L().Error("metrics listener", zap.String("addr", g.MetricsListen), zap.Error(err))
			}
		}()
	}
	return promMetrics.device, promMetrics.changer
}

func (g *Globals) config(m *changer.Metrics) changer.Config {
	cfg := changer.DefaultConfig()
	cfg.MaxRetries = g.Retry.Max
	cfg.RetryDelay = g.Retry.Delay
	cfg.PollCount = g.Retry.PollCount
	cfg.PollInterval = g.Retry.PollInterval
	cfg.InitStatus = !g.Retry.NoInitStatus
	cfg.Metrics = m
	return cfg
}

// open opens the changer and tape devices and starts a session on them.
func (g *Globals) open() (*changer.Session, error) {
	dm, cm := g.metrics()

	var opened []device.Transport
	openDevice := func(url, ident string) (changer.Device, error) {
		t, err := device.Open(url)
		if err != nil {
			return changer.Device{}, err
		}
		opened = append(opened, t)
		if dm != nil {
			t = dm.Wrap(url, t)
		}
		return changer.Device{Path: url, Transport: t, Identity: ident}, nil
	}
	closeAll := func(err error) error {
		for _, t := range opened {
			if cerr := t.Close(); cerr != nil {
				err = multierror.Append(err, cerr)
			}
		}
		return err
	}

	chg, err := openDevice(g.Changer, g.Identity)
	if err != nil {
		return nil, closeAll(err)
	}
	var tapes []changer.TapeDevice
	for _, url := range g.Tapes {
		d, err := openDevice(url, g.TapeIdentity)
		if err != nil {
			return nil, closeAll(err)
		}
		tapes = append(tapes, changer.TapeDevice{Data: d})
	}

	// NewSession closes the transports itself when it fails.
	return changer.NewSession(g.config(cm), chg, tapes...)
}

func (g *Globals) state() *state.File {
	return state.NewFile(g.StateFile)
}

// withSession runs fn on a new session and closes it afterwards.
func (g *Globals) withSession(fn func(s *changer.Session) error) (err error) {
	s, err := g.open()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()
	zap.L().Debug("session", zap.String("id", s.ID.String()), zap.String("profile", s.Changer.Profile.Name()))
	return fn(s)
}

// Exit codes: zero is success, one is a condition such as an empty
// slot and two is a failure.
const (
	ExitOK        = 0
	ExitCondition = 1
	ExitFailure   = 2
)

// ExitCode maps the error returned by a command to the process exit
// status.
func ExitCode(err error) int {
	switch st := changer.Status(err); {
	case st == changer.StatusOK:
		return ExitOK
	case st > 0:
		return ExitCondition
	default:
		return ExitFailure
	}
}

func printf(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
}
