package main

import (
	"context"
	"fmt"
	"io"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/poise/pkg/audio/backends/hybrid"
	_ "github.com/xaionaro-go/poise/pkg/audio/backends/malgo"
	_ "github.com/xaionaro-go/poise/pkg/audio/backends/oto"
	_ "github.com/xaionaro-go/poise/pkg/audio/backends/portaudio"
	_ "github.com/xaionaro-go/poise/pkg/audio/backends/pulseaudio"
	"github.com/xaionaro-go/poise/pkg/audio/registry"
	"github.com/xaionaro-go/poise/pkg/audio/types"
	"github.com/xaionaro-go/poise/pkg/config"
)

func newHybrid(ctx context.Context, captureName, renderName string) (types.Backend, error) {
	capture, err := registry.NewCaptureBackend(ctx, captureName)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the capture half: %w", err)
	}
	render, err := registry.NewRenderBackend(ctx, renderName)
	if err != nil {
		capture.Close()
		return nil, fmt.Errorf("unable to initialize the render half: %w", err)
	}
	return hybrid.New(capture, render), nil
}

// newBackend resolves the backend once at startup. In the auto mode a
// combined backend is preferred, then the best capture and render pair.
func newBackend(ctx context.Context, cfg config.Backend) (types.Backend, error) {
	switch cfg.Name {
	case config.BackendHybrid:
		return newHybrid(ctx, cfg.HybridCapture, cfg.HybridRender)
	case config.BackendAuto:
		b, err := registry.NewBackend(ctx, registry.NameAuto)
		if err == nil {
			return b, nil
		}
		logger.Warnf(ctx, "no combined audio backend is available, trying a hybrid one: %v", err)
		return newHybrid(ctx, registry.NameAuto, registry.NameAuto)
	default:
		return registry.NewBackend(ctx, cfg.Name)
	}
}

func listDevices(ctx context.Context, w io.Writer, backend types.Backend) error {
	for _, role := range []types.DeviceRole{
		types.DeviceRoleCapture,
		types.DeviceRoleLoopback,
		types.DeviceRoleRender,
	} {
		devices, err := backend.Devices(ctx, role)
		if err != nil {
			logger.Warnf(ctx, "unable to list %s devices: %v", role, err)
			continue
		}
		for _, device := range devices {
			marker := ""
			if device.IsLoopback {
				marker = " [LOOPBACK]"
			}
			fmt.Fprintf(w, "%-8s %-40q %q %dHz %dch%s\n",
				role, device.ID, device.Name, device.SampleRate, device.Channels, marker)
		}
	}
	return nil
}
