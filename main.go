package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/urfave/cli/v2"
	"github.com/xcono/relquery/builder"
	"github.com/xcono/relquery/schema"
	"github.com/xcono/relquery/web"
	"github.com/xcono/relquery/web/handlers"
	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/logx"

	// mysql driver
	_ "github.com/go-sql-driver/mysql"
)

func main() {

	var c schema.Config

	app := &cli.App{
		Name:  "relquery",
		Usage: "Relational query builder service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "f",
				Value:   "config.yaml",
				Usage:   "the config file",
				EnvVars: []string{"RELQUERY_CONFIG"},
			},
		},
		Before: func(cmd *cli.Context) error {
			conf.MustLoad(cmd.String("f"), &c)
			logx.MustSetup(c.Log)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "serve",
				Usage:     "Start serving service",
				ArgsUsage: "[service]",
				Action: func(cmd *cli.Context) error {
					return web.StartServer(c, cmd.Args().Get(0)) //blocking call
				},
			},
			{
				Name:      "resolve",
				Usage:     "Resolve a builder document into an execution request",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "service", Usage: "service whose catalog to use"},
					&cli.StringFlag{Name: "flavor", Usage: "also print SQL: mysql, postgresql or sqlite"},
				},
				Action: func(cmd *cli.Context) error {
					return resolve(c, cmd.Args().Get(0), cmd.String("service"), cmd.String("flavor"))
				},
			},
			{
				Name:      "inspect",
				Usage:     "Print the catalog of a service as YAML",
				ArgsUsage: "[service]",
				Action: func(cmd *cli.Context) error {
					_, service, err := c.LookupService(cmd.Args().Get(0))
					if err != nil {
						return err
					}

					catalog, err := schema.LoadCatalog(service)
					if err != nil {
						return err
					}

					data, err := schema.MarshalCatalog(catalog)
					if err != nil {
						return err
					}
					fmt.Print(string(data))
					return nil
				},
			},
		},
	}

	sort.Sort(cli.FlagsByName(app.Flags))
	sort.Sort(cli.CommandsByName(app.Commands))

	if err := app.Run(os.Args); err != nil {
		logx.Error(err)
		os.Exit(1)
	}
}

// resolve prints the execution request of a payload file, and its SQL
// when a flavor is given.
func resolve(c schema.Config, file, serviceName, flavorName string) error {
	if file == "" {
		return fmt.Errorf("missing document file")
	}

	_, service, err := c.LookupService(serviceName)
	if err != nil {
		return err
	}

	catalog, err := schema.LoadCatalog(service)
	if err != nil {
		return err
	}

	evaluator, err := builder.NewCELEvaluator()
	if err != nil {
		return err
	}

	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	var payload handlers.Payload
	dec := json.NewDecoder(f)
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return fmt.Errorf("decode %s: %w", file, err)
	}

	ctx := payload.Context.Context(catalog, evaluator)
	req, err := payload.Request(ctx)
	if err != nil {
		return err
	}

	jsonData, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(jsonData))

	if flavorName == "" {
		return nil
	}

	flavor, err := builder.ParseFlavor(flavorName)
	if err != nil {
		return err
	}

	sql, args, err := builder.SQL(req, catalog, flavor)
	if err != nil {
		return err
	}
	fmt.Println(sql)
	fmt.Println(args...)
	return nil
}
