package channelmirror_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestChannelMirror(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Channel Mirror Suite")
}
