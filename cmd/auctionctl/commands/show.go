package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/shinyyama/auction-backend/internal/money"
	"github.com/shinyyama/auction-backend/internal/service"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <auction-id>",
	Short: "Print an auction's state and bid history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid auction id %q", args[0])
		}
		gdb, err := connect()
		if err != nil {
			return err
		}
		d, err := ledger(gdb).Detail(cmd.Context(), id, "")
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), d)
		}
		return writeText(cmd.OutOrStdout(), d)
	},
}

type bidView struct {
	ID        uint64 `json:"id"`
	BidderUID string `json:"bidder_uid"`
	Amount    string `json:"amount"`
	CreatedAt string `json:"created_at"`
}

type auctionView struct {
	ID            uint64    `json:"id"`
	Title         string    `json:"title"`
	OwnerUID      string    `json:"owner_uid"`
	Active        bool      `json:"active"`
	StartingPrice string    `json:"starting_price"`
	CurrentPrice  string    `json:"current_price"`
	MinimumBid    string    `json:"minimum_bid"`
	BidCount      int64     `json:"bid_count"`
	WinnerUID     string    `json:"winner_uid,omitempty"`
	EndTime       string    `json:"end_time,omitempty"`
	Bids          []bidView `json:"bids"`
}

func toView(d *service.AuctionDetail) auctionView {
	a := d.Auction
	v := auctionView{
		ID:            a.ID,
		Title:         a.Title,
		OwnerUID:      a.OwnerUID,
		Active:        a.IsActive,
		StartingPrice: money.Format(a.StartingPrice),
		CurrentPrice:  money.Format(d.CurrentPrice),
		MinimumBid:    money.Format(d.MinimumBid),
		BidCount:      d.BidCount,
		Bids:          make([]bidView, 0, len(d.Bids)),
	}
	if a.WinnerUID != nil {
		v.WinnerUID = *a.WinnerUID
	}
	if a.EndTime != nil {
		v.EndTime = a.EndTime.Format(time.RFC3339)
	}
	for _, b := range d.Bids {
		v.Bids = append(v.Bids, bidView{
			ID:        b.ID,
			BidderUID: b.BidderUID,
			Amount:    money.Format(b.Amount),
			CreatedAt: b.CreatedAt.Format(time.RFC3339),
		})
	}
	return v
}

func writeJSON(w io.Writer, d *service.AuctionDetail) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(toView(d))
}

func writeText(w io.Writer, d *service.AuctionDetail) error {
	v := toView(d)
	status := "active"
	if !v.Active {
		status = "closed"
	}
	fmt.Fprintf(w, "#%d %s [%s]\n", v.ID, v.Title, status)
	fmt.Fprintf(w, "owner:    %s\n", v.OwnerUID)
	fmt.Fprintf(w, "starting: %s  current: %s  minimum bid: %s\n", v.StartingPrice, v.CurrentPrice, v.MinimumBid)
	if v.EndTime != "" {
		fmt.Fprintf(w, "ends:     %s\n", v.EndTime)
	}
	if v.WinnerUID != "" {
		fmt.Fprintf(w, "winner:   %s\n", v.WinnerUID)
	}
	fmt.Fprintf(w, "bids:     %d\n", v.BidCount)
	if len(v.Bids) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tBIDDER\tAMOUNT\tAT")
	for _, b := range v.Bids {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", b.ID, b.BidderUID, b.Amount, b.CreatedAt)
	}
	return tw.Flush()
}
