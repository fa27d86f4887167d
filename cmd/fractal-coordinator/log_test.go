// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestChannelLoggerToggles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		infoEnabled  bool
		errorEnabled bool
		wantInfo     bool
		wantError    bool
	}{
		{name: "both on", infoEnabled: true, errorEnabled: true, wantInfo: true, wantError: true},
		{name: "errors only", infoEnabled: false, errorEnabled: true, wantInfo: false, wantError: true},
		{name: "info only", infoEnabled: true, errorEnabled: false, wantInfo: true, wantError: false},
		{name: "both off", infoEnabled: false, errorEnabled: false, wantInfo: false, wantError: false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			var buffer bytes.Buffer
			logger := channelLogger(&buffer, "distributer", test.infoEnabled, test.errorEnabled)

			logger.Info("workload leased")
			gotInfo := strings.Contains(buffer.String(), "workload leased")
			if gotInfo != test.wantInfo {
				t.Errorf("info logged = %v, want %v", gotInfo, test.wantInfo)
			}

			buffer.Reset()
			logger.Error("connection error")
			gotError := strings.Contains(buffer.String(), "connection error")
			if gotError != test.wantError {
				t.Errorf("error logged = %v, want %v", gotError, test.wantError)
			}
		})
	}
}

func TestChannelLoggerTagsChannel(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer
	logger := channelLogger(&buffer, "data-server", true, true)
	logger.Info("tile server listening")
	if !strings.Contains(buffer.String(), "channel=data-server") {
		t.Errorf("log line %q is missing the channel attribute", buffer.String())
	}
}
