package relay

import (
	"fmt"

	"fwdproxy-go/internal/model"
)

// WriteConnectEstablished writes the synthetic 200 response for a
// direct-mode CONNECT tunnel. Unlike httperr.Send this does not latch
// ResponseMessageSent: the bytes that follow are an opaque relay, not a
// second HTTP response.
func WriteConnectEstablished(conn *model.Connection, packageName, version string) error {
	resp := fmt.Sprintf(
		"HTTP/1.0 200 Connection established\r\nProxy-agent: %s/%s\r\n\r\n",
		packageName, version,
	)
	if _, err := conn.Client.Write([]byte(resp)); err != nil {
		return fmt.Errorf("relay: write CONNECT response: %w", err)
	}
	return nil
}
