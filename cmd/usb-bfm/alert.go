// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"crypto/tls"
	"fmt"
	"log"
	"strings"

	mail "gopkg.in/gomail.v2"

	"github.com/go-lpc/usbbfm/report"
)

type alerter struct {
	usr  string
	pwd  string
	srv  string
	port int
	tgts []string

	dial func(msg *mail.Message) error
}

func (a alerter) valid() bool {
	return a.usr != "" && a.pwd != "" &&
		a.srv != "" && a.port != 0 &&
		len(a.tgts) != 0
}

func (a alerter) message(names []string, recs []report.Record, err error) *mail.Message {
	if len(names) == 0 {
		names = []string{"all"}
	}

	body := new(strings.Builder)
	fmt.Fprintf(body, "scenarios: %s\nerror: %v\n\n", strings.Join(names, ", "), err)
	for _, rec := range recs {
		if rec.Status == report.StatusOK {
			continue
		}
		fmt.Fprintf(body, "%v\n", rec)
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", a.usr)
	msg.SetHeader("Bcc", a.tgts...)
	msg.SetHeader("Subject", fmt.Sprintf("[usb-bfm] scenario alert: %s", strings.Join(names, ", ")))
	msg.SetBody("text/plain", body.String())
	return msg
}

func (a alerter) send(names []string, recs []report.Record, err error) {
	if !a.valid() {
		log.Printf("could not send mail alert: missing credentials")
		return
	}

	dial := a.dial
	if dial == nil {
		dial = func(msg *mail.Message) error {
			d := mail.NewDialer(a.srv, a.port, a.usr, a.pwd)
			d.TLSConfig = &tls.Config{
				InsecureSkipVerify: true,
			}
			return d.DialAndSend(msg)
		}
	}

	e := dial(a.message(names, recs, err))
	if e != nil {
		log.Printf("could not send mail alert: %+v", e)
	}
}
