package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/store"
	"github.com/sells-group/leadgen-cli/pkg/notion"
	sfpkg "github.com/sells-group/leadgen-cli/pkg/salesforce"
)

func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initSalesforce() (sfpkg.Client, error) {
	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	return sfpkg.Connect(sfpkg.JWTConfig{
		LoginURL:      cfg.Salesforce.LoginURL,
		Username:      cfg.Salesforce.Username,
		ClientID:      cfg.Salesforce.ClientID,
		PrivateKeyPEM: string(pemData),
	}, sfpkg.WithRateLimit(5))
}

func initNotion() notion.Client {
	return notion.NewClient(cfg.Notion.Token)
}
