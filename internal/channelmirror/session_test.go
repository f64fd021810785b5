package channelmirror_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"tark/internal/channelmirror"
)

var _ = Describe("DeriveSessionID", func() {
	It("is deterministic for the same plugin and conversation", func() {
		a := channelmirror.DeriveSessionID("slack", "C123")
		b := channelmirror.DeriveSessionID("slack", "C123")
		Expect(a).To(Equal(b))
	})

	It("prefixes the session id with channel_<pluginID>_", func() {
		id := channelmirror.DeriveSessionID("slack", "C123")
		Expect(id).To(HavePrefix("channel_slack_"))
	})

	It("differs across conversations for the same plugin", func() {
		a := channelmirror.DeriveSessionID("slack", "C123")
		b := channelmirror.DeriveSessionID("slack", "C456")
		Expect(a).NotTo(Equal(b))
	})

	It("differs across plugins for the same conversation", func() {
		a := channelmirror.DeriveSessionID("slack", "C123")
		b := channelmirror.DeriveSessionID("discord", "C123")
		Expect(a).NotTo(Equal(b))
	})

	It("is safe to embed in a URL path segment", func() {
		id := channelmirror.DeriveSessionID("slack", "C123")
		suffix := strings.TrimPrefix(id, "channel_slack_")
		Expect(suffix).NotTo(ContainSubstring("/"))
		Expect(suffix).NotTo(ContainSubstring("+"))
	})
})
