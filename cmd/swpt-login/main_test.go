package main

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/swaptacular/swpt-login/internal/application"
	"github.com/swaptacular/swpt-login/internal/domain"
)

func TestParseFlushArgs(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	opts, err := parseFlushArgs([]string{"-p", "4", "--wait", "0.5", "--quit-early", "activate_user_signal"}, &stderr)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.Processes != 4 || opts.Period != 500*time.Millisecond || !opts.QuitEarly {
		t.Fatalf("unexpected options %+v", opts)
	}
	if !slices.Equal(opts.SignalTypes, []domain.SignalType{domain.SignalActivateUser}) {
		t.Fatalf("unexpected signal types %v", opts.SignalTypes)
	}

	opts, err = parseFlushArgs(nil, &stderr)
	if err != nil || opts.SignalTypes != nil || opts.Processes != 0 {
		t.Fatalf("no arguments must select every signal type with configured defaults, got %+v, %v", opts, err)
	}
	if _, err := parseFlushArgs([]string{"no_such_signal"}, &stderr); err == nil {
		t.Fatal("expected an error for an unknown signal type")
	}
	if _, err := parseFlushArgs([]string{"--processes=-1"}, &stderr); err == nil {
		t.Fatal("expected an error for a negative worker count")
	}
}

func TestUsageErrors(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	if code := run(context.Background(), nil, &stderr); code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
	if code := run(context.Background(), []string{"bogus"}, &stderr); code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
	if code := run(context.Background(), []string{"suspend"}, &stderr); code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "usage: swpt-login") {
		t.Fatalf("expected usage text, got %q", stderr.String())
	}
}

type fakeAdmin struct {
	calls []string
	err   error
}

func (f *fakeAdmin) record(op string, ids []string) (application.AdminResult, error) {
	f.calls = append(f.calls, op+":"+strings.Join(ids, ","))
	return application.AdminResult{Requested: len(ids), Changed: int64(len(ids))}, f.err
}

func (f *fakeAdmin) SuspendUsers(_ context.Context, ids []string) (application.AdminResult, error) {
	return f.record("suspend", ids)
}

func (f *fakeAdmin) ResumeUsers(_ context.Context, ids []string) (application.AdminResult, error) {
	return f.record("resume", ids)
}

func (f *fakeAdmin) DeleteUsers(_ context.Context, ids []string) (application.AdminResult, error) {
	return f.record("delete", ids)
}

func TestRunAdmin(t *testing.T) {
	t.Parallel()

	svc := &fakeAdmin{}
	var stderr bytes.Buffer
	if code := runAdmin(context.Background(), svc, "suspend", []string{"1", "2"}, &stderr); code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !slices.Equal(svc.calls, []string{"suspend:1,2"}) || !strings.Contains(stderr.String(), "2 of 2") {
		t.Fatalf("unexpected calls %v, output %q", svc.calls, stderr.String())
	}

	svc.err = errors.New("hydra unavailable")
	if code := runAdmin(context.Background(), svc, "delete", []string{"3"}, &stderr); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}
