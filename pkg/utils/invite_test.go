package utils

import (
	"regexp"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

var hexCode = regexp.MustCompile(`^[0-9a-f]+$`)

func TestNewInviteCode_Bounds(t *testing.T) {
	assert.Len(t, NewInviteCode(0), 1)
	assert.Len(t, NewInviteCode(8), 8)
	assert.Len(t, NewInviteCode(64), 32)
}

func TestProperty_InviteCodeShape(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("codes have the requested length and are lowercase hex", prop.ForAll(
		func(length int) bool {
			code := NewInviteCode(length)
			return len(code) == length && hexCode.MatchString(code)
		},
		gen.IntRange(1, 32),
	))

	properties.Property("codes of length 8 do not repeat within a batch", prop.ForAll(
		func(count int) bool {
			seen := make(map[string]bool, count)
			for _i := 0; _i < count; _i++ {
				code := NewInviteCode(8)
				if seen[code] {
					return false
				}
				seen[code] = true
			}
			return true
		},
		gen.IntRange(10, 200),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
