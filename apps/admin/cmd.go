package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/trezcool/elearn/core/entitlement"
)

var errHelp = errors.New("help provided")

// freeSampleManager is implemented by *entitlement.Resolver.
type freeSampleManager interface {
	FreeSample(ctx context.Context) ([]entitlement.ContentRef, error)
	AddFreeSample(ctx context.Context, ref entitlement.ContentRef) ([]entitlement.ContentRef, error)
	RemoveFreeSample(ctx context.Context, ref entitlement.ContentRef) ([]entitlement.ContentRef, error)
}

type commandLine struct {
	db      *sql.DB
	samples freeSampleManager
	out     io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  freesample -list - list the free plan's sample content")
	fmt.Fprintln(cli.out, "  freesample -add CURRICULUM[:CLASSLEVEL] - add content to the free plan's sample")
	fmt.Fprintln(cli.out, "  freesample -remove CURRICULUM[:CLASSLEVEL] - remove content from the free plan's sample")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	freeSampleCmd := flag.NewFlagSet("freesample", flag.ContinueOnError)
	freeSampleCmd.SetOutput(cli.out)
	freeSampleList := freeSampleCmd.Bool("list", false, "List the sample content.")
	freeSampleAdd := freeSampleCmd.String("add", "", "Content to add: CURRICULUM[:CLASSLEVEL] IDs.")
	freeSampleRemove := freeSampleCmd.String("remove", "", "Content to remove: CURRICULUM[:CLASSLEVEL] IDs.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "freesample":
		if err := freeSampleCmd.Parse(args[2:]); err != nil {
			return err
		}
		ctx := context.Background()
		switch {
		case *freeSampleAdd != "" && *freeSampleRemove == "":
			return cli.editFreeSample(ctx, *freeSampleAdd, cli.samples.AddFreeSample)
		case *freeSampleRemove != "" && *freeSampleAdd == "":
			return cli.editFreeSample(ctx, *freeSampleRemove, cli.samples.RemoveFreeSample)
		case *freeSampleList:
			refs, err := cli.samples.FreeSample(ctx)
			if err != nil {
				return err
			}
			cli.printSample(refs)
			return nil
		default:
			freeSampleCmd.Usage()
			return errHelp
		}
	default:
		cli.printUsage()
		return errHelp
	}
}

type editFunc func(ctx context.Context, ref entitlement.ContentRef) ([]entitlement.ContentRef, error)

func (cli *commandLine) editFreeSample(ctx context.Context, arg string, edit editFunc) error {
	ref, err := parseContentRef(arg)
	if err != nil {
		return err
	}
	refs, err := edit(ctx, ref)
	if err != nil {
		return err
	}
	cli.printSample(refs)
	return nil
}

func (cli *commandLine) printSample(refs []entitlement.ContentRef) {
	if len(refs) == 0 {
		fmt.Fprintln(cli.out, "free sample is empty")
		return
	}
	for _, ref := range refs {
		fmt.Fprintln(cli.out, formatContentRef(ref))
	}
}

// parseContentRef parses "CURRICULUM[:CLASSLEVEL]".
func parseContentRef(s string) (entitlement.ContentRef, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	curriculumID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || curriculumID <= 0 {
		return entitlement.ContentRef{}, fmt.Errorf("invalid curriculum id %q", parts[0])
	}
	ref := entitlement.ContentRef{CurriculumID: curriculumID}
	if len(parts) == 2 {
		classLevelID, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || classLevelID <= 0 {
			return entitlement.ContentRef{}, fmt.Errorf("invalid class level id %q", parts[1])
		}
		ref.ClassLevelID = &classLevelID
	}
	return ref, nil
}

func formatContentRef(ref entitlement.ContentRef) string {
	s := strconv.FormatInt(ref.CurriculumID, 10)
	if ref.ClassLevelID != nil {
		s += ":" + strconv.FormatInt(*ref.ClassLevelID, 10)
	}
	return s
}
