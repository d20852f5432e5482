package tasking

// runMaintenance performs the periodic, off-the-critical-path
// housekeeping every worker is responsible for: reintegrating memory
// freed by other workers into its own heap, and advancing the epoch
// clock so garbage it retired becomes reclaimable once every other
// worker has caught up. Workers call this when they find no task to
// run, and again every MaintenanceInterval tasks so a saturated worker
// doesn't starve its own reclamation.
func runMaintenance(w *worker) {
	w.rt.allocator.DrainRemoteFrees(w.id)
	collected := w.rt.epochs.AdvanceAndCollect(w.id)
	if collected > 0 {
		w.rt.metrics.recordReclaimed(w.id, collected)
	}
}
