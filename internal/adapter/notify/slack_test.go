//go:build slack

package notify

import (
	"testing"

	"foodcourt/internal/infra/config"
)

func TestSlackNotifierConfig(t *testing.T) {
	n, err := newSlackNotifier(config.SlackNotifyConfig{Token: "xoxb-test", Channel: "#approvals"}, newTestLogger())
	if err != nil {
		t.Fatalf("newSlackNotifier: %v", err)
	}
	sn, ok := n.(*SlackNotifier)
	if !ok {
		t.Fatalf("got %T", n)
	}
	if sn.channel != "#approvals" {
		t.Errorf("channel = %q", sn.channel)
	}
	if sn.api == nil {
		t.Error("client not constructed")
	}
}

func TestSlackNotifierMissingToken(t *testing.T) {
	if _, err := newSlackNotifier(config.SlackNotifyConfig{Channel: "#approvals"}, newTestLogger()); err == nil {
		t.Fatal("expected error")
	}
}

func TestSlackNotifierMissingChannel(t *testing.T) {
	if _, err := newSlackNotifier(config.SlackNotifyConfig{Token: "xoxb-test"}, newTestLogger()); err == nil {
		t.Fatal("expected error")
	}
}
