package apiserver

import "fmt"

func errBadOp(kind, missingField string) error {
	if missingField == "" {
		return fmt.Errorf("apiserver: unknown database op kind %q", kind)
	}
	return fmt.Errorf("apiserver: database op %q requires %q", kind, missingField)
}
