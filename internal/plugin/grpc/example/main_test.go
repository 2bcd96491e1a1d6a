package main

import (
	"context"
	"testing"

	"github.com/goatkit/serverboot/internal/plugin/plugintest"
	"github.com/goatkit/serverboot/pkg/plugin"
)

func TestAnnouncerInitialize(t *testing.T) {
	host := &plugintest.Host{HostInfo: plugin.HostInfo{World: "Skyland", Port: 7777, MaxPlayers: 8}}
	p, err := NewAnnouncer(host)
	if err != nil {
		t.Fatalf("NewAnnouncer error: %v", err)
	}

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}

	cmds := host.Commands()
	if len(cmds) != 1 {
		t.Fatalf("expected 1 command, got %d", len(cmds))
	}
	if cmds[0] != "say Now hosting Skyland on port 7777 (max 8 players)" {
		t.Errorf("unexpected command %q", cmds[0])
	}
}

func TestAnnouncementWithoutWorld(t *testing.T) {
	got := announcement(plugin.HostInfo{Port: 7777, MaxPlayers: 8})
	if got != "say Now hosting a new world on port 7777 (max 8 players)" {
		t.Errorf("unexpected announcement %q", got)
	}
}

func TestManifest(t *testing.T) {
	m := Manifest()
	if m.Module != "Announcer" {
		t.Errorf("expected module 'Announcer', got %s", m.Module)
	}
	if len(m.Types) != 2 {
		t.Fatalf("expected 2 types, got %d", len(m.Types))
	}
	if m.Types[1].APIVersion.Major != 1 {
		t.Errorf("legacy type should target API 1.x")
	}
}
