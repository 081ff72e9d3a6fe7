// Package ota implements the firmware updater service: enabled only in
// update mode, it joins the strongest open network, pulls the firmware
// image over HTTP, and commits it to the spare slot when the image's
// monotonic version is newer than the running one. Every await point is
// cancellable by the disable signal.
package ota

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/dougsko/carbridged/pkg/apperr"
	"github.com/dougsko/carbridged/pkg/bus"
	"github.com/dougsko/carbridged/pkg/hardware"
	"github.com/dougsko/carbridged/pkg/lifecycle"
	"github.com/dougsko/carbridged/pkg/logging"
	"github.com/dougsko/carbridged/pkg/selectspawn"
)

// Config parameterizes one update attempt.
type Config struct {
	FirmwareURL    string
	ScanTimeout    time.Duration
	RunningVersion uint32
}

// Service is the OTA updater, bound to the Wifi lifecycle slot.
type Service struct {
	bus    *bus.Bus
	sub    *bus.Subscription
	cfg    Config
	wifi   hardware.WifiStation
	puller hardware.FirmwarePuller
	slot   hardware.FlashSlot
}

func New(b *bus.Bus, cfg Config, wifi hardware.WifiStation, puller hardware.FirmwarePuller, slot hardware.FlashSlot) *Service {
	return &Service{
		bus:    b,
		sub:    b.Subscription(lifecycle.Wifi),
		cfg:    cfg,
		wifi:   wifi,
		puller: puller,
		slot:   slot,
	}
}

// Run drives the service's enable/disable lifecycle. A failed attempt
// surfaces its error and the service parks until the next update request
// (i.e. the next disable/enable cycle).
func (s *Service) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		guard := s.sub.Lifecycle.StartedWhenEnabled()

		runErr := selectspawn.Race(ctx,
			s.sub.Lifecycle.WaitDisabledCtx,
			func(ctx context.Context) error {
				if err := s.update(ctx); err != nil {
					logging.Errorf("ota", "update attempt failed: %v", err)
				}
				// Park until disabled: the attempt is re-driven by the next
				// update request, not by retry.
				<-ctx.Done()
				return nil
			},
		)
		s.wifi.Leave()
		guard.Release()

		if ctx.Err() != nil {
			return nil
		}
		if runErr != nil {
			return runErr
		}
	}
}

func (s *Service) update(ctx context.Context) error {
	networks, err := s.wifi.Scan(ctx, s.cfg.ScanTimeout)
	if err != nil {
		return apperr.Network(err, "wifi scan")
	}
	network, ok := hardware.StrongestOpen(networks)
	if !ok {
		return apperr.Network(errors.New("no open network in range"), "wifi scan")
	}
	if err := s.wifi.Join(ctx, network.SSID); err != nil {
		return apperr.Network(err, "wifi join")
	}
	logging.Infof("ota", "joined %s (%d dBm)", network.SSID, network.RssiDbm)

	header, body, err := s.puller.Fetch(ctx, s.cfg.FirmwareURL)
	if err != nil {
		return apperr.Network(err, "firmware fetch")
	}
	defer body.Close()

	if header.Version <= s.cfg.RunningVersion {
		logging.Infof("ota", "image version %d not newer than running %d, skipping",
			header.Version, s.cfg.RunningVersion)
		return nil
	}

	if err := s.slot.Write(ctx, body, header.Size); err != nil {
		return apperr.Network(err, "write firmware slot")
	}
	if err := s.slot.Commit(); err != nil {
		return apperr.Peripheral(err, "commit firmware slot")
	}
	logging.Infof("ota", "committed firmware version %d", header.Version)
	return nil
}
