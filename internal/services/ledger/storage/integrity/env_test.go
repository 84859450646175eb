package integrity

import "testing"

func TestKeyringFromEnv_SingleKey(t *testing.T) {
	t.Setenv(envHMACKeys, "")
	t.Setenv(envHMACKey, "secret")
	t.Setenv(envHMACKeyID, "")

	ring, err := KeyringFromEnv()
	if err != nil {
		t.Fatalf("keyring from env: %v", err)
	}
	if ring.ActiveKeyID() != defaultKeyID {
		t.Fatalf("active key id = %s, want %s", ring.ActiveKeyID(), defaultKeyID)
	}
}

func TestKeyringFromEnv_KeyList(t *testing.T) {
	t.Setenv(envHMACKeys, "v1=one, v2=two")
	t.Setenv(envHMACKeyID, "v2")

	ring, err := KeyringFromEnv()
	if err != nil {
		t.Fatalf("keyring from env: %v", err)
	}
	if ring.ActiveKeyID() != "v2" {
		t.Fatalf("active key id = %s, want v2", ring.ActiveKeyID())
	}
}

func TestKeyringFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name  string
		keys  string
		key   string
		keyID string
	}{
		{name: "missing", keys: "", key: ""},
		{name: "malformed entry", keys: "v1"},
		{name: "empty secret", keys: "v1="},
		{name: "active id not listed", keys: "v1=one", keyID: "v9"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(envHMACKeys, tc.keys)
			t.Setenv(envHMACKey, tc.key)
			t.Setenv(envHMACKeyID, tc.keyID)
			if _, err := KeyringFromEnv(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
