package discovery

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestServerURL(t *testing.T) {
	tests := []struct {
		name   string
		server Server
		want   string
	}{
		{"IPv4", Server{Addresses: []string{"192.168.1.50"}, Port: 9000}, "ws://192.168.1.50:9000"},
		{"IPv6", Server{Addresses: []string{"fe80::1"}, Port: 9000}, "ws://[fe80::1]:9000"},
		{"HostFallback", Server{Host: "esp32-mcp.local.", Port: 8080}, "ws://esp32-mcp.local:8080"},
		{"DefaultPort", Server{Addresses: []string{"10.0.0.2"}}, "ws://10.0.0.2:9000"},
		{"Path", Server{Addresses: []string{"10.0.0.2"}, Port: 80, Path: "mcp"}, "ws://10.0.0.2:80/mcp"},
		{"Secure", Server{Addresses: []string{"10.0.0.2"}, Port: 443, Path: "/ws", Secure: true}, "wss://10.0.0.2:443/ws"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.server.URL()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := (&Server{Instance: "lonely"}).URL()
	assert.ErrorIs(t, err, ErrNoAddress)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "ESP32-MCP", (&Server{Instance: "esp32", Name: "ESP32-MCP"}).DisplayName())
	assert.Equal(t, "esp32", (&Server{Instance: "esp32"}).DisplayName())
}

func TestServerTXT(t *testing.T) {
	info := &ServiceInfo{Instance: "esp32", Path: "/ws", Name: "ESP32-MCP", Version: "1.2.0", Secure: true}
	strs := TXTRecordsToStrings(EncodeServerTXT(info))
	assert.Equal(t, []string{"name=ESP32-MCP", "path=/ws", "tls=1", "ver=1.2.0"}, strs)

	var srv Server
	DecodeServerTXT(StringsToTXTRecords(strs), &srv)
	assert.Equal(t, "/ws", srv.Path)
	assert.Equal(t, "ESP32-MCP", srv.Name)
	assert.Equal(t, "1.2.0", srv.Version)
	assert.True(t, srv.Secure)

	assert.Empty(t, EncodeServerTXT(&ServiceInfo{Instance: "esp32", Path: "/"}))
}

func TestStringsToTXTRecords(t *testing.T) {
	txt := StringsToTXTRecords([]string{"PATH=/mcp", "flag", "", "=orphan", "ver=a=b"})
	assert.Equal(t, TXTRecordMap{"path": "/mcp", "flag": "", "ver": "a=b"}, txt)

	var srv Server
	DecodeServerTXT(TXTRecordMap{"path": "/", "tls": "no"}, &srv)
	assert.Empty(t, srv.Path)
	assert.False(t, srv.Secure)
}

func TestServiceInfoValidate(t *testing.T) {
	assert.NoError(t, (&ServiceInfo{Instance: "esp32"}).Validate())
	assert.ErrorIs(t, (&ServiceInfo{}).Validate(), ErrInvalidInstanceName)
	assert.ErrorIs(t, (&ServiceInfo{Instance: strings.Repeat("x", 64)}).Validate(), ErrInvalidInstanceName)
	assert.ErrorIs(t, (&ServiceInfo{Instance: "esp32", Path: strings.Repeat("p", 300)}).Validate(), ErrTXTTooLong)
}

func TestServerSet(t *testing.T) {
	set := newServerSet()

	assert.True(t, set.add(&Server{Instance: "a", Addresses: []string{"10.0.0.1"}}))
	assert.False(t, set.add(&Server{Instance: "a", Addresses: []string{"10.0.0.1", "fe80::1"}}))
	assert.True(t, set.add(&Server{Instance: "b", Addresses: []string{"10.0.0.2"}}))

	list := set.list()
	require.Len(t, list, 2)
	assert.Equal(t, []string{"10.0.0.1", "fe80::1"}, list[0].Addresses)

	assert.False(t, set.remove(&Server{Instance: "a", Addresses: []string{"10.0.0.1"}}))
	assert.True(t, set.remove(&Server{Instance: "a", Addresses: []string{"fe80::1"}}))
	assert.False(t, set.remove(&Server{Instance: "zzz"}))

	list = set.list()
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].Instance)
}

// fakeSource emits updates and then waits for the browse to end.
func fakeSource(updates ...update) func(context.Context, chan<- update) {
	return func(ctx context.Context, out chan<- update) {
		for _, u := range updates {
			select {
			case out <- u:
			case <-ctx.Done():
				return
			}
		}
		<-ctx.Done()
	}
}

func found(instance string, addrs ...string) update {
	return update{server: &Server{Instance: instance, Port: DefaultPort, Addresses: addrs}}
}

func gone(instance string, addrs ...string) update {
	return update{server: &Server{Instance: instance, Addresses: addrs}, removed: true}
}

func testBrowser(updates ...update) *Browser {
	b := NewBrowser(BrowserConfig{BrowseTimeout: 50 * time.Millisecond})
	b.source = fakeSource(updates...)
	return b
}

func TestBrowseEmitsEachInstanceOnce(t *testing.T) {
	b := testBrowser(
		found("esp32-a", "10.0.0.1"),
		found("esp32-a", "fe80::1"),
		found("esp32-b", "10.0.0.2"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	servers, err := b.Browse(ctx)
	require.NoError(t, err)

	var names []string
	for srv := range servers {
		names = append(names, srv.Instance)
		if len(names) == 2 {
			cancel()
		}
	}
	assert.Equal(t, []string{"esp32-a", "esp32-b"}, names)
}

func TestLookup(t *testing.T) {
	b := testBrowser(
		found("esp32-b", "10.0.0.2"),
		found("esp32-a", "10.0.0.1"),
		found("esp32-a", "fe80::1"),
		found("esp32-c", "10.0.0.3"),
		gone("esp32-c", "10.0.0.3"),
	)

	servers, err := b.Lookup(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, "esp32-a", servers[0].Instance)
	assert.Equal(t, []string{"10.0.0.1", "fe80::1"}, servers[0].Addresses)
	assert.Equal(t, "esp32-b", servers[1].Instance)

	url, err := servers[0].URL()
	require.NoError(t, err)
	assert.Equal(t, "ws://10.0.0.1:9000", url)
}

func TestFind(t *testing.T) {
	named := found("esp32-b", "10.0.0.2")
	named.server.Name = "Kitchen"

	b := testBrowser(found("esp32-a", "10.0.0.1"), named)
	srv, err := b.Find(context.Background(), "kitchen")
	require.NoError(t, err)
	assert.Equal(t, "esp32-b", srv.Instance)

	srv, err = b.Find(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "esp32-a", srv.Instance)

	_, err = b.Find(context.Background(), "garage")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBrowserStop(t *testing.T) {
	b := testBrowser(found("esp32-a", "10.0.0.1"))

	servers, err := b.Browse(context.Background())
	require.NoError(t, err)
	<-servers

	b.Stop()
	for range servers {
	}

	_, err = b.Browse(context.Background())
	assert.ErrorIs(t, err, ErrBrowserStopped)
	_, err = b.Lookup(context.Background())
	assert.ErrorIs(t, err, ErrBrowserStopped)
}

func TestAdvertiserRejectsInvalidInfo(t *testing.T) {
	a := NewAdvertiser(DefaultAdvertiserConfig())
	defer a.Stop()

	err := a.Advertise(&ServiceInfo{})
	assert.ErrorIs(t, err, ErrInvalidInstanceName)
	assert.Nil(t, a.Advertised())
}
