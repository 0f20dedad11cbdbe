package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/jmgilman/go/errors"
	"github.com/jnwhiteh/sectorfs/fs"
)

var shellHelp = [][2]string{
	{"?", "help"},
	{"ls [path]", "show directory listing"},
	{"cd path", "change directory"},
	{"pwd", "show current directory"},
	{"cat path", "show file contents"},
	{"stat path", "describe an entry"},
	{"mkdir path", "create a directory"},
	{"rm path", "remove a file or symlink"},
	{"rmdir path", "remove an empty directory"},
	{"ln [-s] old new", "make a hard link or a symlink"},
	{"write path text...", "replace a file's contents with text"},
	{"df", "show space usage"},
	{"exit", "leave the shell"},
}

// repl reads commands from in until exit or end of input. The prompt is
// only printed when a person is typing.
func repl(fsys *fs.FileSystem, in io.Reader, out io.Writer, interactive bool) error {
	if interactive {
		fmt.Fprintln(out, "Welcome to the sectorfs explorer!")
		fmt.Fprintln(out, helpStyle.Render("Enter '?' for a list of commands."))
	}

	buf := bufio.NewReader(in)
	for {
		if interactive {
			fmt.Fprint(out, promptStyle.Render(fsys.CurrentPath()+">")+" ")
		}

		read, err := buf.ReadString('\n')
		if err != nil && read == "" {
			if interactive {
				fmt.Fprintln(out)
			}
			return nil
		}

		tokens := strings.Fields(read)
		if len(tokens) == 0 {
			continue
		}
		if tokens[0] == "exit" || tokens[0] == "quit" {
			return nil
		}
		if err := runShellCommand(fsys, out, tokens); err != nil {
			fmt.Fprintln(out, errorStyle.Render(fmt.Sprintf("%s: %s", tokens[0], err)))
		}
	}
}

func runShellCommand(fsys *fs.FileSystem, out io.Writer, tokens []string) error {
	cmd, args := tokens[0], tokens[1:]
	usage := func() error {
		for _, h := range shellHelp {
			if strings.HasPrefix(h[0], cmd+" ") || h[0] == cmd {
				return errors.Newf(errors.CodeInvalidInput, "usage: %s", h[0])
			}
		}
		return errors.Newf(errors.CodeInvalidInput, "usage: %s", cmd)
	}

	switch cmd {
	case "?", "help":
		fmt.Fprintln(out, "Commands:")
		for _, h := range shellHelp {
			fmt.Fprintf(out, "\t%-20s%s\n", h[0], helpStyle.Render(h[1]))
		}
	case "ls":
		dir := ""
		if len(args) > 0 {
			dir = args[0]
		}
		return list(fsys, out, dir)
	case "cd":
		if len(args) != 1 {
			return usage()
		}
		return fsys.Chdir(args[0])
	case "pwd":
		fmt.Fprintf(out, "Current directory is %s\n", fsys.CurrentPath())
	case "cat":
		if len(args) != 1 {
			return usage()
		}
		if err := cat(fsys, out, args[0]); err != nil {
			return err
		}
		fmt.Fprintln(out)
	case "stat":
		if len(args) != 1 {
			return usage()
		}
		return stat(fsys, out, args[0])
	case "mkdir":
		if len(args) != 1 {
			return usage()
		}
		return fsys.Mkdir(args[0])
	case "rm":
		if len(args) != 1 {
			return usage()
		}
		return fsys.Remove(args[0])
	case "rmdir":
		if len(args) != 1 {
			return usage()
		}
		return fsys.Rmdir(args[0])
	case "ln":
		symbolic := len(args) > 0 && args[0] == "-s"
		if symbolic {
			args = args[1:]
		}
		if len(args) != 2 {
			return usage()
		}
		return link(fsys, symbolic, args[0], args[1])
	case "write":
		if len(args) < 1 {
			return usage()
		}
		return writeText(fsys, args[0], strings.Join(args[1:], " "))
	case "df":
		return df(fsys, out)
	default:
		return errors.New(errors.CodeInvalidInput, "not a valid command, enter '?' for help")
	}
	return nil
}
