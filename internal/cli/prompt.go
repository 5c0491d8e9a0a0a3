package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/jhoicas/mercado-local/internal/infrastructure/identity"
)

// prompter lectura de líneas y avisos en la terminal.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// ask muestra label y devuelve la línea sin espacios. EOF sin texto es "".
func (p *prompter) ask(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("leer entrada: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// deviceCode aviso del flujo de dispositivo de Google.
func (p *prompter) deviceCode(dc identity.DeviceCode) {
	fmt.Fprintf(p.out, "Abre %s e ingresa el código %s\n", dc.VerificationURI, dc.UserCode)
	if dc.CompleteURI != "" {
		fmt.Fprintf(p.out, "O abre directamente: %s\n", dc.CompleteURI)
	}
}
