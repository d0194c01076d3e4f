package linkpreview

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBlockedIP(t *testing.T) {
	blocked := []string{
		"0.0.0.0", "0.1.2.3",
		"10.0.0.1", "10.255.255.255",
		"127.0.0.1", "127.8.8.8",
		"169.254.169.254",
		"172.16.0.1", "172.31.255.254",
		"192.168.1.1",
		"224.0.0.1", "239.255.255.250",
		"240.0.0.1", "255.255.255.255",
		"::", "::1",
		"fc00::1", "fd12:3456::1",
		"fe80::1", "fe80::1%eth0",
		"::ffff:127.0.0.1", "::ffff:169.254.169.254", "::ffff:10.0.0.1",
	}
	for _, s := range blocked {
		assert.True(t, IsBlockedIP(netip.MustParseAddr(s)), s)
	}

	allowed := []string{
		"1.1.1.1", "8.8.8.8", "93.184.216.34",
		"172.15.255.255", "172.32.0.1",
		"169.253.0.1", "192.169.0.1",
		"2606:4700:4700::1111", "::ffff:8.8.8.8",
	}
	for _, s := range allowed {
		assert.False(t, IsBlockedIP(netip.MustParseAddr(s)), s)
	}

	assert.True(t, IsBlockedIP(netip.Addr{}))
}

func TestIsBlockedHostname(t *testing.T) {
	skip := []string{"facebook.com", "X.com"}

	for _, h := range []string{
		"metadata.google.internal", "METADATA.GOOGLE.INTERNAL.", "metadata.goog",
		"metadata", "instance-data", "localhost", "app.localhost", "db.internal",
		"facebook.com", "m.facebook.com", "x.com", "",
	} {
		assert.True(t, IsBlockedHostname(h, skip), h)
	}
	for _, h := range []string{"example.com", "notfacebook.com", "box.com", "internal.example.org"} {
		assert.False(t, IsBlockedHostname(h, skip), h)
	}
}

type errResolver struct{}

func (errResolver) LookupNetIP(context.Context, string, string) ([]netip.Addr, error) {
	return nil, errors.New("no such host")
}

func TestHostValidatorValidate(t *testing.T) {
	ctx := context.Background()
	v := &HostValidator{
		Resolver: fakeResolver{
			"rebind.test": {netip.MustParseAddr("93.184.216.34"), netip.MustParseAddr("10.0.0.5")},
			"empty.test":  {},
		},
		SkipDomains: []string{"tiktok.com"},
	}

	assert.NoError(t, v.Validate(ctx, "example.test"))
	assert.NoError(t, v.Validate(ctx, "93.184.216.34"))
	assert.ErrorIs(t, v.Validate(ctx, "169.254.169.254"), ErrBlockedAddress)
	assert.ErrorIs(t, v.Validate(ctx, "::1"), ErrBlockedAddress)
	assert.ErrorIs(t, v.Validate(ctx, "rebind.test"), ErrBlockedAddress)
	assert.ErrorIs(t, v.Validate(ctx, "empty.test"), ErrNoAddresses)
	assert.ErrorIs(t, v.Validate(ctx, "www.tiktok.com"), ErrBlockedHost)

	v.Resolver = errResolver{}
	assert.Error(t, v.Validate(ctx, "example.test"))
}
