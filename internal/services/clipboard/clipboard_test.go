package clipboard

import (
	"errors"
	"testing"
)

func TestServiceCopy(t *testing.T) {
	writeFailure := errors.New("xsel exited")
	testCases := []struct {
		name        string
		unsupported bool
		writeErr    error
		expectErr   error
		expectWrite bool
	}{
		{name: "writes text", expectWrite: true},
		{name: "unsupported platform", unsupported: true, expectErr: ErrUnavailable},
		{name: "write failure is wrapped", writeErr: writeFailure, expectErr: writeFailure, expectWrite: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			var written []string
			service := &Service{
				unsupported: func() bool { return testCase.unsupported },
				write: func(text string) error {
					written = append(written, text)
					return testCase.writeErr
				},
			}
			copyErr := service.Copy("Here is your python(3.10.0) output")
			if testCase.expectErr == nil && copyErr != nil {
				t.Fatalf("unexpected error: %v", copyErr)
			}
			if testCase.expectErr != nil && !errors.Is(copyErr, testCase.expectErr) {
				t.Fatalf("expected %v, got %v", testCase.expectErr, copyErr)
			}
			if testCase.expectWrite != (len(written) == 1) {
				t.Fatalf("unexpected writes %v", written)
			}
		})
	}
}
