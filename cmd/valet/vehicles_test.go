package main

import (
	"strings"
	"testing"
)

func TestVehiclesCmd_EmptyList(t *testing.T) {
	dir := t.TempDir()
	cfgPath := dir + "/valet.yaml"
	if err := writeTestFile(cfgPath, validTestConfig(dir)); err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, "db", "init", "--config", cfgPath); err != nil {
		t.Fatalf("db init failed: %v", err)
	}

	out, err := runCLI(t, "vehicles", "--config", cfgPath)
	if err != nil {
		t.Fatalf("vehicles failed: %v", err)
	}
	if !strings.Contains(out, "No vehicles linked.") {
		t.Errorf("expected empty-list message, got: %s", out)
	}
}

func TestVehiclesCmd_MissingConfig(t *testing.T) {
	_, err := runCLI(t, "vehicles", "--config", "/nonexistent/valet.yaml")
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}
