package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jhoicas/mercado-local/internal/application/navigation"
	"github.com/jhoicas/mercado-local/internal/domain/entity"
)

func newStatusCmd(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Mostrar la sesión guardada y su destino",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printSession(cmd.OutOrStdout(), appFn().manager.Current())
			return nil
		},
	}
}

func newRegisterCmd(appFn func() *app) *cobra.Command {
	var (
		name     string
		password string
		role     string
	)

	cmd := &cobra.Command{
		Use:   "register <email>",
		Short: "Crear cuenta con email y contraseña en el servicio de usuarios",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			r, err := entity.ParseRole(role)
			if err != nil {
				return userFacing(err)
			}
			if password == "" {
				if password, err = a.prompt.ask("Contraseña: "); err != nil {
					return err
				}
			}
			s, err := a.manager.RegisterTraditional(cmd.Context(), name, args[0], password, r)
			if err != nil {
				return userFacing(err)
			}
			printSession(cmd.OutOrStdout(), s)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Nombre visible")
	cmd.Flags().StringVar(&password, "password", "", "Contraseña (si se omite, se pide)")
	cmd.Flags().StringVar(&role, "role", "", "Tipo de cuenta (customer, seller); vacío para elegir después")
	return cmd
}

func newRoleCmd(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:       "role <customer|seller>",
		Short:     "Elegir el tipo de cuenta (solo una vez)",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{entity.RoleCustomer.String(), entity.RoleSeller.String()},
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := entity.ParseRole(args[0])
			if err != nil {
				return userFacing(err)
			}
			s, err := appFn().manager.SelectRole(cmd.Context(), r)
			if err != nil {
				return userFacing(err)
			}
			printSession(cmd.OutOrStdout(), s)
			return nil
		},
	}
}

func newProfileCmd(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Actualizar el perfil desde el servicio de usuarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := appFn().manager.RefreshProfile(cmd.Context())
			if err != nil {
				// Un 401 ya cerró la sesión; se muestra el estado resultante.
				printSession(cmd.OutOrStdout(), s)
				return userFacing(err)
			}
			printSession(cmd.OutOrStdout(), s)
			return nil
		},
	}
}

func newLogoutCmd(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Cerrar sesión",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := appFn().manager.SignOut(cmd.Context()); err != nil {
				return userFacing(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Sesión cerrada.")
			return nil
		},
	}
}

func newMethodsCmd(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "Listar los métodos de inicio de sesión disponibles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "phone")
			fmt.Fprintln(out, "email")
			if a.provider.IsThirdPartyAvailable() {
				fmt.Fprintln(out, "google")
			}
			return nil
		},
	}
}

// printSession resumen de la sesión y la pantalla a la que lleva.
func printSession(out io.Writer, s entity.Session) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	if !s.IsAuthenticated() {
		fmt.Fprintf(tw, "sesión:\tno iniciada\n")
		fmt.Fprintf(tw, "destino:\t%s\n", navigation.DestinationFor(s))
		return
	}
	role := s.Role.String()
	if role == "" {
		role = "(sin elegir)"
	}
	fmt.Fprintf(tw, "sesión:\tiniciada\n")
	fmt.Fprintf(tw, "usuario:\t%s\n", s.UserID)
	if s.DisplayName != "" {
		fmt.Fprintf(tw, "nombre:\t%s\n", s.DisplayName)
	}
	if s.Email != "" {
		fmt.Fprintf(tw, "email:\t%s\n", s.Email)
	}
	if s.Phone != "" {
		fmt.Fprintf(tw, "teléfono:\t%s\n", s.Phone)
	}
	fmt.Fprintf(tw, "rol:\t%s\n", role)
	fmt.Fprintf(tw, "destino:\t%s\n", navigation.DestinationFor(s))
}
