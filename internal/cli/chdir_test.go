package cli_test

import (
	"os"
	"testing"
)

// chdir cambia el directorio de trabajo durante la prueba y lo restaura al terminar
// (equivalente a testing.T.Chdir, disponible solo desde Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
