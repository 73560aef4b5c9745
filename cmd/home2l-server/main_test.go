package main

import (
	"testing"
)

func TestParseArgsCoreFlags(t *testing.T) {
	opts, err := parseArgs([]string{"-c", "/tmp/resources.conf", "-x", "myhouse", "-s", "desktop,gui"})
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if opts.confPath != "/tmp/resources.conf" || opts.instance != "myhouse" {
		t.Fatalf("unexpected opts: %+v", opts)
	}
	if len(opts.sections) != 2 || opts.sections[0] != "desktop" || opts.sections[1] != "gui" {
		t.Fatalf("unexpected sections: %v", opts.sections)
	}
}

func TestParseArgsHelpShortCircuits(t *testing.T) {
	opts, err := parseArgs([]string{"-h"})
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if !opts.help {
		t.Fatal("expected help to be set")
	}
}

func TestParseArgsKeyValuePreOptions(t *testing.T) {
	opts, err := parseArgs([]string{"listen=127.0.0.1:9001", "admin=127.0.0.1:9002", "demo=true"})
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if opts.listenAddr != "127.0.0.1:9001" || opts.adminAddr != "127.0.0.1:9002" || !opts.demo {
		t.Fatalf("unexpected opts: %+v", opts)
	}
}

func TestParseArgsRejectsUnknownFlag(t *testing.T) {
	if _, err := parseArgs([]string{"-z"}); err == nil {
		t.Fatal("expected an error for an unknown flag")
	}
}

func TestParseArgsRejectsUnknownKey(t *testing.T) {
	if _, err := parseArgs([]string{"bogus=1"}); err == nil {
		t.Fatal("expected an error for an unrecognized key=value option")
	}
}

func TestParseArgsRejectsMissingValue(t *testing.T) {
	if _, err := parseArgs([]string{"-c"}); err == nil {
		t.Fatal("expected an error when -c has no following path")
	}
}

func TestRunReturnsUsageErrorExitCode(t *testing.T) {
	if code := run([]string{"-z"}); code != 3 {
		t.Fatalf("expected exit code 3 for a usage error, got %d", code)
	}
}

func TestRunPrintsHelpAndExitsZero(t *testing.T) {
	if code := run([]string{"-h"}); code != 0 {
		t.Fatalf("expected exit code 0 for -h, got %d", code)
	}
}
