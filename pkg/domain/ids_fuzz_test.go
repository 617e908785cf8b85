//go:build go1.18

package domain

import "testing"

// FuzzParseIdentityID checks that parsing never panics and that accepted ids
// round-trip unchanged.
func FuzzParseIdentityID(f *testing.F) {
	f.Add("")
	f.Add("80351110224678912")
	f.Add("user:admin")
	f.Add("'; DROP TABLE cooldowns;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseIdentityID(input)
		if err != nil {
			return
		}
		if id.String() != input {
			t.Errorf("accepted id changed value: %q -> %q", input, id)
		}
		if len(input) > maxIdentityIDLength {
			t.Errorf("accepted overlong id of length %d", len(input))
		}
		again, err := ParseIdentityID(id.String())
		if err != nil || again != id {
			t.Errorf("valid id failed round-trip: %v", err)
		}
	})
}
