package domain

import (
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestIsCodeThroughWrapping(t *testing.T) {
	base := errors.New("connection refused")
	err := fmt.Errorf("screen: %w", WrapError(CodeRemoteControlFailed, "play failed", base))

	if !IsCode(err, CodeRemoteControlFailed) {
		t.Fatalf("expected %s code in %v", CodeRemoteControlFailed, err)
	}
	if IsCode(err, CodeDeviceNotFound) {
		t.Fatal("unexpected device-not-found match")
	}
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped cause to be reachable")
	}
	if got := err.Error(); got != "screen: REMOTE_CONTROL_FAILED: play failed: connection refused" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestIsCodePlainError(t *testing.T) {
	if IsCode(errors.New("boom"), CodeDeviceNotFound) {
		t.Fatal("plain errors carry no code")
	}
	if IsCode(nil, CodeDeviceNotFound) {
		t.Fatal("nil carries no code")
	}
}

func TestRendererCallbackHost(t *testing.T) {
	r := &Renderer{InterfaceIP: net.ParseIP("192.168.1.4")}
	if got := r.CallbackHost(); got != "192.168.1.4" {
		t.Fatalf("unexpected callback host: %q", got)
	}

	var missing *Renderer
	if got := missing.CallbackHost(); got != "" {
		t.Fatalf("expected empty host for nil renderer, got %q", got)
	}
}
