package dispatch

import (
	"context"

	"event-router/internal/common/errors"
	"event-router/internal/storage"
)

func (d *Dispatcher) dispatchTable(ctx context.Context, event *storage.DataEvent, rule *storage.RoutingRule) error {
	table, err := configString(rule.DestinationConfig, "table_name")
	if err != nil {
		return err
	}

	if err := d.store.InsertDestinationRow(ctx, table, event); err != nil {
		return errors.DispatchError("failed to write event to destination table", err)
	}

	return nil
}
