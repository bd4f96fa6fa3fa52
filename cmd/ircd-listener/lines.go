package main

import (
	"bufio"
	"errors"
)

var errLineTooLong = errors.New("ipc: input line too long")

// readBoundedLine reads up to a CRLF or LF, stripping the terminator,
// but gives up with errLineTooLong the moment more than max bytes have
// accumulated without one - an unterminated line is a denial-of-service
// vector on a socket the listener process must keep reading from
// forever otherwise.
func readBoundedLine(r *bufio.Reader, max int) ([]byte, error) {
	var line []byte
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			return nil, err
		}
		line = append(line, chunk...)
		if len(line) > max {
			return nil, errLineTooLong
		}
		if !isPrefix {
			return line, nil
		}
	}
}
