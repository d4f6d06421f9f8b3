// Command gzflate compresses and decompresses zlib streams.
//
// Usage:
//
//	gzflate [options] [file]
//
// With no file (or "-"), gzflate reads from stdin and writes to stdout.
// Compressed files get the ".zz" extension; -d strips it again.
package main

import (
	"bufio"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
	"rsc.io/getopt"

	"github.com/deepteams/zflate"
)

var (
	// Flags

	decompress = flag.Bool("decompress", false, "specify to decompress")
	info       = flag.Bool("info", false, "specify to print info on compressed file")
	keep       = flag.Bool("keep", false, "keep (don't delete) input file")
	toStdout   = flag.Bool("stdout", false, "write to stdout; implies -k")
	force      = flag.Bool("force", false, "overwrite output")
	window     = flag.Int("window", zflate.DefaultWindowSize, "sliding window size (power of two, 256..32768)")
	statsPath  = flag.String("stats", "", "write per-token encoder statistics to `file`")

	// State
	inPath  string
	inFile  *os.File
	outPath string
	outFile *os.File
)

const extension = ".zz"

func doCompress() int {
	var w io.Writer = io.Discard
	var bw *bufio.Writer
	if outFile != nil {
		bw = bufio.NewWriter(outFile)
		w = bw
	}

	opts := &zflate.EncoderOptions{WindowSize: *window}

	var statsFile *os.File
	if *statsPath != "" {
		var err error
		statsFile, err = os.Create(*statsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", *statsPath, err)
			return 4
		}
		defer statsFile.Close()
		sw := bufio.NewWriter(statsFile)
		defer sw.Flush()
		opts.Stats = func(st zflate.TokenStats) {
			// Fixed-size little-endian records, one per token.
			binary.Write(sw, binary.LittleEndian, st)
		}
	}

	if err := zflate.Compress(w, bufio.NewReader(inFile), opts); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", inPath, err)
		return 5
	}
	if bw != nil {
		if err := bw.Flush(); err != nil {
			fmt.Fprintf(os.Stderr, "%s: write: %v\n", outPath, err)
			return 7
		}
	}
	return 0
}

func doDecompress() int {
	data, err := io.ReadAll(bufio.NewReader(inFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", inPath, err)
		return 5
	}

	out, err := zflate.Decompress(data, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", inPath, err)
		return 5
	}

	if outFile != nil {
		w := bufio.NewWriter(outFile)
		if _, err := w.Write(out); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", outPath, err)
			return 7
		}
		if err := w.Flush(); err != nil {
			fmt.Fprintf(os.Stderr, "%s: write: %v\n", outPath, err)
			return 7
		}
	}
	return 0
}

func doInfo() int {
	data, err := io.ReadAll(bufio.NewReader(inFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", inPath, err)
		return 5
	}
	if len(data) < 6 {
		fmt.Fprintf(os.Stderr, "%s: not a zlib stream\n", inPath)
		return 5
	}

	cmf, flg := data[0], data[1]
	if (uint32(cmf)*256+uint32(flg))%31 != 0 || cmf&0x0f != 8 {
		fmt.Fprintf(os.Stderr, "%s: not a zlib stream\n", inPath)
		return 5
	}
	fmt.Printf("window size          %d\n", 1<<((cmf>>4)+8))
	fmt.Printf("compression level    %d\n", flg>>6)
	fmt.Printf("preset dictionary    %t\n", flg&0x20 != 0)
	fmt.Printf("compressed size      %d\n", len(data))
	fmt.Printf("adler32              %08x\n", binary.BigEndian.Uint32(data[len(data)-4:]))

	out, err := zflate.Decompress(data, nil)
	if err != nil {
		fmt.Printf("decompresses         no (%v)\n", err)
		return 5
	}
	fmt.Printf("decompressed size    %d\n", len(out))
	return 0
}

func do() int {
	var (
		err  error
		code int
	)

	if len(flag.Args()) > 1 {
		fmt.Fprintf(os.Stderr, "too many arguments\n")
		return 2
	}

	if len(flag.Args()) == 0 {
		inPath = "-"
	} else {
		inPath = flag.Args()[0]
	}

	closeInput := false
	closeOutput := false

	defer func() {
		if closeInput {
			inFile.Close()
		}
		if closeOutput {
			outFile.Close()
			if code != 0 {
				os.Remove(outPath)
			}
		}
	}()

	if inPath == "-" {
		inFile = os.Stdin
	} else {
		if _, err := os.Stat(inPath); errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "%s: %v\n", inPath, err)
			return 1
		}
		inFile, err = os.Open(inPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", inPath, err)
			return 3
		}
		closeInput = true
	}

	if inPath == "-" {
		outPath = "-"
	} else if *toStdout {
		outPath = "-"
	} else if *decompress {
		if strings.HasSuffix(inPath, extension) {
			outPath = inPath[:len(inPath)-len(extension)]
		} else {
			outPath = inPath + ".out"
			fmt.Fprintf(os.Stderr, "%s: unknown extension, writing to %s\n", inPath, outPath)
		}
	} else if !*info {
		outPath = inPath + extension
	}

	if *info {
		outFile = nil
	} else if outPath == "-" {
		outFile = os.Stdout
		if term.IsTerminal(int(os.Stdout.Fd())) && !*decompress {
			fmt.Fprintf(os.Stderr, "gzflate: I'm not writing compressed data to a terminal\n")
			return 13
		}
	} else {
		if _, err := os.Stat(outPath); !*force && err == nil {
			fmt.Fprintf(os.Stderr, "%s: already exists\n", outPath)
			return 6
		}
		outFile, err = os.Create(outPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", outPath, err)
			return 3
		}
		closeOutput = true
	}

	switch {
	case *info:
		code = doInfo()
	case *decompress:
		code = doDecompress()
	default:
		code = doCompress()
	}

	if code == 0 && closeOutput && !*keep && !*toStdout {
		closeInput = false
		inFile.Close()
		if err := os.Remove(inPath); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", inPath, err)
			return 8
		}
	}
	return code
}

func main() {
	getopt.Alias("d", "decompress")
	getopt.Alias("k", "keep")
	getopt.Alias("c", "stdout")
	getopt.Alias("f", "force")
	getopt.Alias("i", "info")
	getopt.Alias("w", "window")

	if err := getopt.CommandLine.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	os.Exit(do())
}
