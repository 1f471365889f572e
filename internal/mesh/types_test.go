package mesh

import (
	"crypto/sha256"
	"testing"
)

func TestChannelSlotEmpty(t *testing.T) {
	tests := []struct {
		name string
		slot ChannelSlot
		want bool
	}{
		{"zero value", ChannelSlot{}, true},
		{"named", ChannelSlot{Name: "General"}, false},
		{"secret only", ChannelSlot{Secret: DeriveChannelSecret("x")}, false},
		{"named with secret", ChannelSlot{Name: "Ops", Secret: DeriveChannelSecret("Ops")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.slot.Empty(); got != tt.want {
				t.Errorf("Empty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeriveChannelSecret(t *testing.T) {
	secret := DeriveChannelSecret("General")

	sum := sha256.Sum256([]byte("General"))
	for i := 0; i < SecretSize; i++ {
		if secret[i] != sum[i] {
			t.Fatalf("byte %d: got %#x, want %#x", i, secret[i], sum[i])
		}
	}

	// Case matters: different names must derive different secrets.
	if DeriveChannelSecret("general") == secret {
		t.Error("expected different secrets for different case")
	}
	if DeriveChannelSecret("General") != secret {
		t.Error("expected derivation to be deterministic")
	}
}

func TestContactKeyPrefix(t *testing.T) {
	c := Contact{Name: "alpha", PublicKey: "ABCDEF0123456789ABCDEF"}
	if got := c.KeyPrefix(); got != "abcdef012345" {
		t.Errorf("KeyPrefix() = %q, want %q", got, "abcdef012345")
	}

	short := Contact{PublicKey: "AB12"}
	if got := short.KeyPrefix(); got != "ab12" {
		t.Errorf("KeyPrefix() short key = %q, want %q", got, "ab12")
	}
}

func TestBatteryPercentage(t *testing.T) {
	tests := []struct {
		milliVolts int
		want       float64
	}{
		{3200, 0},
		{4200, 100},
		{3700, 50},
		{3000, 0},   // below empty clamps to 0
		{4400, 100}, // above full clamps to 100
	}
	for _, tt := range tests {
		if got := BatteryPercentage(tt.milliVolts); got != tt.want {
			t.Errorf("BatteryPercentage(%d) = %v, want %v", tt.milliVolts, got, tt.want)
		}
	}
}

func TestStatusBatteryVolts(t *testing.T) {
	st := Status{BatteryMilliVolts: 4123}
	if got := st.BatteryVolts(); got != 4.123 {
		t.Errorf("BatteryVolts() = %v, want 4.123", got)
	}
}
