package steps

import (
	"fmt"

	"github.com/stretchr/testify/assert"
)

// asserter collects a testify failure as an error so assertions can fail a
// godog step outside of go test.
type asserter struct {
	err error
}

func (a *asserter) Errorf(format string, args ...interface{}) {
	a.err = fmt.Errorf(format, args...)
}

type expectedAndActualAssertion func(t assert.TestingT, expected, actual interface{}, msgAndArgs ...interface{}) bool

type actualAssertion func(t assert.TestingT, actual, element interface{}, msgAndArgs ...interface{}) bool

func equal(t assert.TestingT, expected, actual interface{}, msgAndArgs ...interface{}) bool {
	return assert.Equal(t, expected, actual, msgAndArgs...)
}

func contains(t assert.TestingT, actual, element interface{}, msgAndArgs ...interface{}) bool {
	return assert.Contains(t, actual, element, msgAndArgs...)
}

func assertExpectedAndActual(a expectedAndActualAssertion, expected, actual interface{}, msgAndArgs ...interface{}) error {
	var t asserter
	a(&t, expected, actual, msgAndArgs...)
	return t.err
}

func assertActual(a actualAssertion, actual, element interface{}, msgAndArgs ...interface{}) error {
	var t asserter
	a(&t, actual, element, msgAndArgs...)
	return t.err
}
