package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jhoicas/mercado-local/internal/domain"
	"github.com/jhoicas/mercado-local/internal/domain/entity"
)

func newLoginCmd(appFn func() *app) *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Iniciar sesión",
	}
	cmd.PersistentFlags().StringVar(&role, "role", "", "Tipo de cuenta a elegir si aún no tiene (customer, seller)")

	cmd.AddCommand(
		newLoginPhoneCmd(appFn, &role),
		newLoginGoogleCmd(appFn, &role),
		newLoginEmailCmd(appFn, &role),
	)
	return cmd
}

func newLoginPhoneCmd(appFn func() *app, role *string) *cobra.Command {
	var code string

	cmd := &cobra.Command{
		Use:   "phone <+E164>",
		Short: "Iniciar sesión con código SMS",
		Long:  "Envía un código al teléfono y lo pide por la terminal. Escribe 'r' para reenviar o deja vacío para cancelar.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			ctx := cmd.Context()

			res, err := a.manager.LoginWithPhone(ctx, args[0])
			if err != nil {
				return userFacing(err)
			}
			if res.AutoVerified {
				fmt.Fprintf(cmd.OutOrStdout(), "Número %s verificado automáticamente.\n", res.Phone)
				return finishLogin(cmd, a, *role)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Código enviado a %s.\n", res.Phone)

			for {
				entered := code
				code = "" // --code solo vale para el primer intento
				if entered == "" {
					if entered, err = a.prompt.ask("Código: "); err != nil {
						a.manager.CancelVerification()
						return err
					}
				}
				switch strings.ToLower(entered) {
				case "":
					a.manager.CancelVerification()
					return userFacing(domain.ErrUserCancelled)
				case "r":
					if _, err := a.manager.ResendCode(ctx); err != nil {
						fmt.Fprintln(cmd.ErrOrStderr(), domain.UserMessage(err))
						continue
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Código reenviado.")
					continue
				}
				if _, err := a.manager.ConfirmPhoneCode(ctx, entered); err != nil {
					return userFacing(err)
				}
				return finishLogin(cmd, a, *role)
			}
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "Código recibido (si se omite, se pide)")
	return cmd
}

func newLoginGoogleCmd(appFn func() *app, role *string) *cobra.Command {
	return &cobra.Command{
		Use:   "google",
		Short: "Iniciar sesión con Google",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			if _, err := a.manager.LoginWithThirdParty(cmd.Context()); err != nil {
				return userFacing(err)
			}
			return finishLogin(cmd, a, *role)
		},
	}
}

func newLoginEmailCmd(appFn func() *app, role *string) *cobra.Command {
	var (
		password string
		create   bool
		direct   bool
	)

	cmd := &cobra.Command{
		Use:   "email <email>",
		Short: "Iniciar sesión con email y contraseña",
		Long: `Por defecto usa el proveedor de identidad (--create crea la cuenta allí).
Con --direct habla solo con el servicio de usuarios y registra la cuenta si no existe.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			if password == "" {
				var err error
				if password, err = a.prompt.ask("Contraseña: "); err != nil {
					return err
				}
			}
			var err error
			if direct {
				_, err = a.manager.LoginOrRegisterTraditional(cmd.Context(), args[0], password)
			} else {
				_, err = a.manager.LoginWithEmailIdentity(cmd.Context(), args[0], password, create)
			}
			if err != nil {
				return userFacing(err)
			}
			return finishLogin(cmd, a, *role)
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "Contraseña (si se omite, se pide)")
	cmd.Flags().BoolVar(&create, "create", false, "Crear la cuenta en el proveedor de identidad")
	cmd.Flags().BoolVar(&direct, "direct", false, "Login directo contra el servicio de usuarios")
	cmd.MarkFlagsMutuallyExclusive("create", "direct")
	return cmd
}

// finishLogin elige el rol pedido si la cuenta aún no tiene y muestra el destino.
func finishLogin(cmd *cobra.Command, a *app, role string) error {
	s := a.manager.Current()
	if role != "" && s.NeedsRole() {
		r, err := entity.ParseRole(role)
		if err != nil {
			return userFacing(err)
		}
		if s, err = a.manager.SelectRole(cmd.Context(), r); err != nil {
			return userFacing(err)
		}
	} else if role != "" && checkRoleMatches(s, role) != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), domain.UserMessage(domain.ErrRoleAlreadySet))
	}
	printSession(cmd.OutOrStdout(), s)
	return nil
}

// checkRoleMatches avisa cuando se pidió un rol distinto del que la cuenta ya tiene.
func checkRoleMatches(s entity.Session, role string) error {
	r, err := entity.ParseRole(role)
	if err != nil || r == s.Role {
		return nil
	}
	return domain.ErrRoleAlreadySet
}
