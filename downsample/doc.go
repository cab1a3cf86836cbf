/*
Package downsample retains a random subset of the templates in a BAM
file. All records sharing a read name travel together: both mates keep
or lose their place as a unit, while secondary and supplementary records
are dropped unconditionally. Verdicts are a deterministic function of
the seed and the template name, so a rerun over the same input with the
same seed reproduces the output exactly.

Three strategies are available. ConstantMemory hashes each template name
and needs no per-template state. HighAccuracy buffers per-template
verdicts and steers its admission threshold so the realized fraction
converges toward the target. Chained composes the two, using the
constant-memory stage to bound the memory of the high-accuracy stage.
*/
package downsample
