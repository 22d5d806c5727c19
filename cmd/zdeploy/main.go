// Command zdeploy is a demo deployer: a two-node graph of in-memory
// null resources run through the standard apply/destroy surface. It
// needs no credentials and records nothing; it exists to show the
// wiring a real deployer program repeats with its own graph.
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/zsec-io/zdeploy/cli"
	"github.com/zsec-io/zdeploy/deploy"
	"github.com/zsec-io/zdeploy/providers/null"
)

// Stable identities: the same ztid must name the same logical resource
// on every run.
var (
	baseZTID      = uuid.MustParse("8f2d7f7e-16a5-4a8c-9096-1f4f60933a10")
	dependentZTID = uuid.MustParse("0e9f5f68-1f0a-4d57-a7a6-2f1f1dd0d9b4")
)

func main() {
	store := null.NewStore()
	kind := null.Kind(store)

	base := &deploy.Node{
		ZTID: baseZTID,
		Kind: kind,
		Name: "demo-base",
		Config: deploy.Map{
			"triggers": deploy.Map{"tier": deploy.V("base")},
		},
	}
	dependent := &deploy.Node{
		ZTID: dependentZTID,
		Kind: kind,
		Name: "demo-dependent",
		Config: deploy.Map{
			"triggers": deploy.Map{
				"base":    deploy.Ref{Node: base},
				"base_id": base.Attr("id"),
			},
		},
	}

	g := deploy.NewGraph()
	if err := g.AddAll(dependent, base); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := cli.Execute(cli.Options{
		Use:     "zdeploy",
		Manager: "zdeploy-demo",
		Graph:   g,
	}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
