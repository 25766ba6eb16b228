package ledger

import (
	"context"

	"kcb-payments-workbench/internal/rpc"
)

// GetDoc serves frappe.client.get for the doctypes the forms read.
func (s *Service) GetDoc(ctx context.Context, args rpc.GetDocArgs) (any, error) {
	switch args.Doctype {
	case rpc.DoctypeSalesInvoice:
		inv, err := s.invoices.GetByName(ctx, args.Name)
		if err != nil {
			return nil, missing(err, args.Doctype, args.Name)
		}
		isReturn := 0
		if inv.IsReturn {
			isReturn = 1
		}
		return rpc.SalesInvoice{
			Name:              inv.Name,
			Customer:          inv.Customer,
			CustomerName:      inv.CustomerName,
			Company:           inv.Company,
			Currency:          inv.Currency,
			DocStatus:         inv.DocStatus,
			IsReturn:          isReturn,
			PostingDate:       rpc.DateOf(inv.PostingDate),
			DueDate:           rpc.DateOf(inv.DueDate),
			GrandTotal:        inv.GrandTotal,
			OutstandingAmount: inv.OutstandingAmount,
		}, nil

	case rpc.DoctypeSTKRequest:
		req, err := s.stk.GetByName(ctx, args.Name)
		if err != nil {
			return nil, missing(err, args.Doctype, args.Name)
		}
		return rpc.STKRequest{
			Name:             req.Name,
			PhoneNumber:      req.PhoneNumber,
			Amount:           req.Amount,
			TillNo:           req.TillNo,
			ReferenceDoctype: req.ReferenceDoctype,
			ReferenceName:    req.ReferenceName,
			TransactionDesc:  req.TransactionDesc,
			PaymentGateway:   req.PaymentGateway,
			KCBMpesaSettings: req.KCBMpesaSettings,
			Status:           req.Status,
		}, nil
	}
	return nil, invalid("DocType %s is not served by the sandbox", args.Doctype)
}
