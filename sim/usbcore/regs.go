// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package usbcore

import (
	"fmt"

	"github.com/go-lpc/usbbfm/csr"
)

// Base addresses of the register banks.
const (
	DefaultBase = 0xe0004800 // host-facing registers
	phyOffset   = 0x800      // device-facing PHY registers
)

type reg int

const (
	regPullup reg = iota
	regAddress

	regSetupData
	regSetupCtrl
	regSetupStatus
	regSetupEvStatus
	regSetupEvPending
	regSetupEvEnable

	regInData
	regInCtrl
	regInStatus
	regInEvStatus
	regInEvPending
	regInEvEnable

	regOutData
	regOutCtrl
	regOutStatus
	regOutEvStatus
	regOutEvPending
	regOutEvEnable

	nHostRegs

	regPhyTxData reg = iota - 1
	regPhyTxCtrl
	regPhyRxStatus
	regPhyRxData
	regPhyCtrl

	nRegs reg = iota - 1
)

var regNames = [...]string{
	regPullup:  "usb_pullup_out",
	regAddress: "usb_address",

	regSetupData:      "usb_setup_data",
	regSetupCtrl:      "usb_setup_ctrl",
	regSetupStatus:    "usb_setup_status",
	regSetupEvStatus:  "usb_setup_ev_status",
	regSetupEvPending: "usb_setup_ev_pending",
	regSetupEvEnable:  "usb_setup_ev_enable",

	regInData:      "usb_in_data",
	regInCtrl:      "usb_in_ctrl",
	regInStatus:    "usb_in_status",
	regInEvStatus:  "usb_in_ev_status",
	regInEvPending: "usb_in_ev_pending",
	regInEvEnable:  "usb_in_ev_enable",

	regOutData:      "usb_out_data",
	regOutCtrl:      "usb_out_ctrl",
	regOutStatus:    "usb_out_status",
	regOutEvStatus:  "usb_out_ev_status",
	regOutEvPending: "usb_out_ev_pending",
	regOutEvEnable:  "usb_out_ev_enable",

	regPhyTxData:   "phy_tx_data",
	regPhyTxCtrl:   "phy_tx_ctrl",
	regPhyRxStatus: "phy_rx_status",
	regPhyRxData:   "phy_rx_data",
	regPhyCtrl:     "phy_ctrl",
}

func (r reg) String() string {
	if r < 0 || int(r) >= len(regNames) {
		return fmt.Sprintf("reg(%d)", int(r))
	}
	return regNames[r]
}

func (r reg) addr(base uint32) uint32 {
	if r < nHostRegs {
		return base + 4*uint32(r)
	}
	return base + phyOffset + 4*uint32(r-nHostRegs)
}

func newMap(base uint32) *csr.Map {
	m := csr.NewMap()
	for r := reg(0); r < nRegs; r++ {
		err := m.Add(r.String(), r.addr(base))
		if err != nil {
			panic(fmt.Errorf("usbcore: could not build register map: %w", err))
		}
	}
	return m
}
