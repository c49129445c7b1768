package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/and161185/blindbox/internal/cartstore"
	"github.com/and161185/blindbox/internal/config"
	"github.com/and161185/blindbox/internal/model"
)

// newRootCmd returns the command tree and a cleanup that releases whatever
// the invoked command opened.
func newRootCmd() (*cobra.Command, func()) {
	v := viper.New()
	var (
		cfgPath string
		a       *app
	)

	root := &cobra.Command{
		Use:           "bb",
		Short:         "Blind box storefront client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			cfg, err := config.Load(v, cfgPath)
			if err != nil {
				return err
			}
			a, err = newApp(cmd.Context(), cfg)
			return err
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "config file (default ./blindbox.yaml)")
	pf.String("api-url", "", "API base URL")
	pf.String("storage", "", "storage driver: file, redis or postgres")
	pf.String("storage-dir", "", "directory for the file storage driver")
	pf.String("log-level", "", "debug, info, warn or error")
	for key, flag := range map[string]string{
		"api.base_url":   "api-url",
		"storage.driver": "storage",
		"storage.dir":    "storage-dir",
		"log.level":      "log-level",
	} {
		_ = v.BindPFlag(key, pf.Lookup(flag))
	}

	get := func() *app { return a }
	root.AddCommand(
		versionCmd(),
		loginCmd(get),
		logoutCmd(get),
		whoamiCmd(get),
		sessionCmd(get),
		profileCmd(get),
		productsCmd(get),
		productCmd(get),
		cartCmd(get),
	)
	cleanup := func() {
		if a != nil {
			a.close()
			a = nil
		}
	}
	return root, cleanup
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bb %s (%s)\n", version, buildDate)
		},
	}
}

func loginCmd(get func() *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the token pair",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			if _, err := a.auth.Login(cmd.Context(), email, password); err != nil {
				return err
			}
			sess, err := a.auth.Session(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sess)
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func logoutCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session and forget local credentials and cart",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			err := a.auth.Logout(cmd.Context())
			if rerr := a.cart.Reset(cmd.Context()); rerr != nil && err == nil {
				err = rerr
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func whoamiCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := get().auth.Me(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), u)
		},
	}
}

func sessionCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Show stored session state without calling the server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := get().auth.Session(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sess)
		},
	}
}

func profileCmd(get func() *app) *cobra.Command {
	var name, phone, avatar string
	set := &cobra.Command{
		Use:   "set",
		Short: "Update profile fields",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var p model.ProfilePatch
			if cmd.Flags().Changed("name") {
				p.Name = &name
			}
			if cmd.Flags().Changed("phone") {
				p.Phone = &phone
			}
			if cmd.Flags().Changed("avatar") {
				p.Avatar = &avatar
			}
			u, err := get().auth.UpdateMe(cmd.Context(), p)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), u)
		},
	}
	set.Flags().StringVar(&name, "name", "", "display name")
	set.Flags().StringVar(&phone, "phone", "", "phone number")
	set.Flags().StringVar(&avatar, "avatar", "", "avatar URL")

	cmd := &cobra.Command{Use: "profile", Short: "Manage the account profile"}
	cmd.AddCommand(set)
	return cmd
}

func productsCmd(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "products",
		Short: "List blind boxes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ps, err := get().catalog.ListBlindBoxes(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ps)
		},
	}
}

func productCmd(get func() *app) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "product <slug>",
		Short: "Show one blind box",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := get().catalog.GetBlindBox(cmd.Context(), args[0], id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "product id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func cartCmd(get func() *app) *cobra.Command {
	var qty int
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Show the cart",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			err := a.cart.FetchCartItems(cmd.Context())
			return printCart(cmd.OutOrStdout(), a.cart.Snapshot(), err)
		},
	}

	add := &cobra.Command{
		Use:   "add <productId>",
		Short: "Add a blind box to the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			err := a.cart.AddToCart(cmd.Context(), args[0], qty)
			return printCart(cmd.OutOrStdout(), a.cart.Snapshot(), err)
		},
	}
	add.Flags().IntVarP(&qty, "quantity", "q", 1, "quantity to add")

	set := &cobra.Command{
		Use:   "set <productId>",
		Short: "Set the quantity of a cart line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			err := a.cart.UpdateQuantity(cmd.Context(), args[0], qty)
			return printCart(cmd.OutOrStdout(), a.cart.Snapshot(), err)
		},
	}
	set.Flags().IntVarP(&qty, "quantity", "q", 1, "new quantity")

	rm := &cobra.Command{
		Use:   "rm <productId>",
		Short: "Remove a cart line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			err := a.cart.RemoveFromCart(cmd.Context(), args[0])
			return printCart(cmd.OutOrStdout(), a.cart.Snapshot(), err)
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			err := a.cart.ClearCart(cmd.Context())
			return printCart(cmd.OutOrStdout(), a.cart.Snapshot(), err)
		},
	}

	cmd.AddCommand(add, set, rm, clearCmd)
	return cmd
}

type cartView struct {
	Cart      *model.Cart `json:"cart"`
	ItemCount int         `json:"itemCount"`
	Total     string      `json:"total"`
	Error     string      `json:"error,omitempty"`
}

// printCart prints the store state even when the operation failed, so the last
// known cart stays visible; err is returned unchanged.
func printCart(w io.Writer, st cartstore.State, err error) error {
	view := cartView{
		Cart:      st.Cart,
		ItemCount: st.Cart.ItemCount(),
		Total:     st.Cart.DisplayTotal().StringFixed(2),
		Error:     st.Err,
	}
	if perr := printJSON(w, view); perr != nil && err == nil {
		return perr
	}
	return err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
