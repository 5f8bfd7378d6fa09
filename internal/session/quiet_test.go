package session

import (
	"errors"
	"fmt"
	"os"
	"testing"

	. "github.com/onsi/gomega"
)

func TestSuppressOutputReturnsResult(t *testing.T) {
	g := NewWithT(t)
	boom := errors.New("boom")
	ran := false

	err := SuppressOutput(func() error {
		ran = true
		fmt.Fprintln(os.Stdout, "this line goes to the null device")
		return boom
	})
	g.Expect(ran).To(BeTrue())
	g.Expect(err).To(MatchError(boom))

	// Streams are usable again afterwards.
	_, err = fmt.Fprint(os.Stderr, "")
	g.Expect(err).NotTo(HaveOccurred())
}
