package franz

import (
	"crypto/tls"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/scram"
)

// saslOpts returns the options to authenticate with SCRAM-SHA-256 over TLS.
func saslOpts(username, password string) []kgo.Opt {
	auth := scram.Auth{
		User: username,
		Pass: password,
	}
	return []kgo.Opt{
		kgo.SASL(auth.AsSha256Mechanism()),
		kgo.DialTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}),
	}
}
