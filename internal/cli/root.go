package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

// Execute arma la CLI, ejecuta args y libera el almacén aunque el comando falle.
func Execute(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	var a *app
	root := newRootCmd(&a, in, out, errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if closeErr := a.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

func newRootCmd(a **app, in io.Reader, out, errOut io.Writer) *cobra.Command {
	var opts appOptions
	p := newPrompter(in, out)

	root := &cobra.Command{
		Use:   "marketplace",
		Short: "Mercado Local: sesión y acceso",
		Long:  "Cliente de Mercado Local: inicia sesión, elige el tipo de cuenta y muestra a dónde lleva la sesión.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			built, err := newApp(cmd.Context(), opts, p, errOut)
			if err != nil {
				return err
			}
			*a = built
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().BoolVar(&opts.ephemeral, "ephemeral", false, "No persistir la sesión (almacén en memoria)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Nivel de log (trace, debug, info, warn, error); por defecto LOG_LEVEL")

	appFn := func() *app { return *a }
	root.AddCommand(
		newStatusCmd(appFn),
		newLoginCmd(appFn),
		newRegisterCmd(appFn),
		newRoleCmd(appFn),
		newProfileCmd(appFn),
		newLogoutCmd(appFn),
		newMethodsCmd(appFn),
	)
	return root
}
